// Command inspect prints the messages stored in a Badger directory.
package main

import (
	"dm-lab/domain"
	"dm-lab/infrastructure/storage"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	user := flag.String("user", "", "Only show messages involving this user")
	limit := flag.Int("limit", 200, "Maximum number of rows")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer func() { _ = db.Close() }()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Type", "Created", "From", "To", "State", "Content"})
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

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("msg:")
		for it.Seek(prefix); it.ValidForPrefix(prefix) && rows < *limit; it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				msg, err := storage.DecodeMessage(v)
				if err != nil {
					fmt.Printf("Error decoding key %s: %v\n", string(item.Key()), err)
					return nil
				}
				if *user != "" && !msg.Involves(*user) {
					return nil
				}
				table.Append(toRow(msg))
				rows++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	header := fmt.Sprintf(" %d message(s) in %s ", rows, *dbPath)
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(header))
	table.Render()
}

func toRow(msg domain.Message) []string {
	state := color.Yellow.Render("unread")
	if msg.IsRead {
		state = color.Green.Render("read")
	}
	content := ""
	switch {
	case msg.Content != nil:
		content = strings.ReplaceAll(*msg.Content, "\n", " ")
	case msg.FileURL != nil:
		content = color.Cyan.Render(*msg.FileURL)
	}
	if r := []rune(content); len(r) > 60 {
		content = string(r[:60]) + "..."
	}
	return []string{
		strconv.FormatUint(uint64(msg.ID), 10),
		string(msg.Type),
		msg.CreatedAt.Format("2006-01-02 15:04:05"),
		msg.SenderID,
		msg.ReceiverID,
		state,
		content,
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
