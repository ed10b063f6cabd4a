// Package main provides the entry point for the PerSpicacity CLI.
//
// PerSpicacity answers questions by searching the web, extracting the text of
// the top results and condensing it with a language model.
//
// Usage:
//
//	perspicacity                 start the interactive prompt
//	perspicacity ask <query>     answer one query and exit
//	perspicacity report          summarise stored fetch attempts
//
// See --help for all available options.
package main

func main() {
	Execute()
}
