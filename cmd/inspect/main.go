package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// Read-only browser over the message store, for operators debugging a
// conversation that looks off in the portal.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Sender", "Recipient", "Read", "Lang", "Created", "Body"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	type row struct {
		ID          string `json:"id"`
		SenderID    string `json:"sender_id"`
		RecipientID string `json:"recipient_id"`
		Body        string `json:"body"`
		Lang        string `json:"lang"`
		IsRead      bool   `json:"is_read"`
		CreatedAt   int64  `json:"created_at"`
	}

	count, unread := 0, 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(value []byte) error {
				var r row
				if err := json.Unmarshal(value, &r); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				count++
				readMark := "yes"
				if !r.IsRead {
					readMark = "no"
					unread++
				}

				// Keep ids short for readability.
				displayID := r.ID
				if len(displayID) > 8 {
					displayID = displayID[:8]
				}
				body := r.Body
				if len(body) > 60 {
					body = body[:57] + "..."
				}

				table.Append([]string{
					displayID,
					r.SenderID,
					r.RecipientID,
					readMark,
					r.Lang,
					time.Unix(0, r.CreatedAt).UTC().Format("2006-01-02 15:04:05"),
					body,
				})
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

	table.Render()
	color.Greenln(fmt.Sprintf("%d messages, %d unread", count, unread))
}
