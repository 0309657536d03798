// Command aomctl inspects the installed libaom and drives the aom bindings
// from the command line.
package main

func main() {
	Execute()
}
