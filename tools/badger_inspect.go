package main

import (
	"flag"
	"fmt"
	"inchat/repositories"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

type Config struct {
	DBPath string `envconfig:"INSPECT_DB" default:"./data/badger"`
	// INSPECT_COLOURS enables a colorized header
	Colours bool `envconfig:"INSPECT_COLOURS" default:"true"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	dbPath := flag.String("db", cfg.DBPath, "Path to badger DB")
	prefix := flag.String("prefix", "rec:", "Prefix to scan (rec:, rel:, idx:)")
	kind := flag.String("kind", "", "Only show entries of this kind (user, channel, channel_role...)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	header := fmt.Sprintf("  ====== %s  prefix=%q ======", *dbPath, *prefix)
	if cfg.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Println(header)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Entity", "Version", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	infos, err := repositories.Inspect(db, *prefix)
	if err != nil {
		log.Fatal(err)
	}
	for _, info := range lo.Filter(infos, func(info repositories.KeyInfo, _ int) bool {
		return *kind == "" || info.Kind == *kind
	}) {
		table.Append([]string{info.Key, info.Kind, shortID(info.Entity), shortID(info.Version), info.Detail})
	}

	table.Render()
}

// shortID keeps the first 8 characters of a UUID for readability.
func shortID(id string) string {
	if len(id) == 36 && strings.Count(id, "-") == 4 {
		return id[:8]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
