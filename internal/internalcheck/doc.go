// Package internalcheck holds static policy tests for this module.
//
// The tests load the module with golang.org/x/tools/go/packages and fail
// when code outside internal/native touches cgo, unsafe or purego, or when
// the public API leaks raw native types. The package has no non-test code.
package internalcheck
