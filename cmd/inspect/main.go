package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"tchat/domain"
	"tchat/repositories"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func main() {
	dbPath := flag.String("db", "", "Path to badger DB (BADGER_FILEPATH of the server)")
	name := flag.String("name", "", "Only show this profile")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("-db is required")
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	repo := repositories.NewProfileRepository(db, logs.GetLoggerFromString("ERROR"))

	var profiles []domain.Profile
	if *name != "" {
		profile, err := repo.Get(*name)
		if err != nil {
			log.Fatal(err)
		}
		profiles = []domain.Profile{profile}
	} else {
		profiles, err = repo.List()
		if err != nil {
			log.Fatal(err)
		}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "First seen", "Last active", "Idle"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	now := time.Now().UTC()
	table.AppendBulk(lo.Map(profiles, func(p domain.Profile, _ int) []string {
		return []string{
			p.Name,
			p.FirstSeen.Format(time.RFC3339),
			p.LastActive.Format(time.RFC3339),
			now.Sub(p.LastActive).Truncate(time.Second).String(),
		}
	}))
	table.Render()
	fmt.Printf("%d profile(s)\n", len(profiles))
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// A store left by a killed server needs one writable open to truncate its value log.
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).WithLogger(nil).WithBypassLockGuard(true)
			repaired, err := badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = repaired.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
