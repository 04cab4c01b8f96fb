// gochallenge fetches pages through the challenge-solving HTTP client.
//
// Subcommands:
//
//	fetch URL...   fetch pages, solving challenges on the way
//	solve FILE     classify a saved challenge page and compute its answer offline
//	list           list evaluators, proof providers and fingerprint profiles
//
// Configuration comes from --config (JSON or YAML) and GCE_* environment
// variables.
package main

import "github.com/firasghr/GoChallengeEngine/cmd"

func main() {
	cmd.Execute()
}
