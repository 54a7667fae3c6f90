// Vclock is the command-line interface for the events simulation core.
package main

func main() {
	Execute()
}
