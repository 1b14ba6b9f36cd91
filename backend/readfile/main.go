// Command readfile decrypts stored tournament files and prints them.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/c2FmZQ/storage"
	"github.com/ttbt-io/wicketkeeper/backend"
	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

var (
	dataDir   = flag.String("data-dir", "data", "Directory for tournament data")
	scorecard = flag.Bool("scorecard", false, "Print the text scorecard of every match instead of the JSON")
)

func main() {
	flag.Parse()
	masterKey, err := backend.LoadMasterKey(*dataDir, os.Getenv("WK_MASTER_KEY"))
	if err != nil {
		log.Fatalf("Refusing to read encrypted data: %v", err)
	}
	store := storage.New(*dataDir, masterKey)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for _, arg := range flag.Args() {
		arg = strings.TrimPrefix(strings.TrimPrefix(arg, *dataDir), "/")
		if strings.HasSuffix(arg, ".meta.json") {
			var meta backend.TournamentMetadata
			if err := store.ReadDataFile(arg, &meta); err != nil {
				log.Printf("%s: %v", arg, err)
				continue
			}
			fmt.Printf("=========== %s ===========\n", arg)
			enc.Encode(meta)
			continue
		}

		var t backend.TournamentRecord
		if err := store.ReadDataFile(arg, &t); err != nil {
			log.Printf("%s: %v", arg, err)
			continue
		}
		fmt.Printf("=========== %s ===========\n", arg)
		if !*scorecard {
			if err := enc.Encode(&t); err != nil {
				log.Printf("JSON: %s: %v", arg, err)
			}
			continue
		}
		for _, m := range t.Matches {
			if err := scoring.NewScorecard(m, t.Teams).WriteText(os.Stdout); err != nil {
				log.Printf("%s: match %s: %v", arg, m.ID, err)
			}
			fmt.Println()
		}
	}
}
