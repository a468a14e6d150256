// Command sqlshell is a line-oriented shell over the database layer. Each
// input line runs as one statement; rows print as their projected maps.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/tomyedwab/sqlbridge/database"
)

func main() {
	dbPath := flag.String("db", ":memory:", "Database path or remote URL")
	authToken := flag.String("auth-token", "", "Auth token for a remote or replica database")
	syncURL := flag.String("sync-url", "", "Primary URL to open the path as an embedded replica")
	timeout := flag.Duration("timeout", 5*time.Second, "Busy timeout for writes")
	safeInts := flag.Bool("safe-integers", false, "Decode integers losslessly")
	flag.Parse()

	db, err := database.Open(*dbPath, database.Options{
		AuthToken:   *authToken,
		SyncURL:     *syncURL,
		BusyTimeout: *timeout,
	})
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *dbPath, err)
	}
	defer db.Close()
	db.DefaultSafeIntegers(*safeInts)

	fmt.Printf("Connected to %s\n", db.Name())
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == ".quit" || line == ".exit":
			return
		case line == ".sync":
			res, err := db.Sync()
			if err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Printf("Synced %d frames, at frame %d\n", res.FramesSynced, res.FrameNo)
			}
		default:
			runStatement(db, line)
		}
		fmt.Print("> ")
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Reading input: %v", err)
	}
}

func runStatement(db *database.DB, sql string) {
	stmt, err := db.Prepare(sql)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer stmt.Finalize()

	cols, err := stmt.Columns()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(cols) == 0 {
		res, err := stmt.Run()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("%d changed, last rowid %d (%s)\n", res.Changes, res.LastInsertRowID, res.Duration)
		return
	}

	rows, err := stmt.Rows()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	count := 0
	for {
		rec, err := rows.Next()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		if rec.Done {
			break
		}
		printRow(rec.Value)
		count++
	}
	fmt.Printf("%d rows\n", count)
}

func printRow(v any) {
	row, ok := v.(map[string]any)
	if !ok {
		fmt.Printf("%v\n", v)
		return
	}
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, row[k])
	}
	fmt.Println(strings.Join(parts, "  "))
}
