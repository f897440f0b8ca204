package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/tomefeed/bookpipe/bookpipe"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "parse":
		cmdParse(os.Args[2:])
	case "info":
		cmdInfo(os.Args[2:])
	case "chapters":
		cmdChapters(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `bookparse — parse ebooks (epub, pdf, mobi) into markdown

usage:
  bookparse parse    <file> [config.yaml]
  bookparse info     <file> [config.yaml]
  bookparse chapters <file> [config.yaml]

parse     Parses the book and prints the full result as JSON.
info      Prints title, author and metadata only.
chapters  Prints the chapter list (order, level, title, length).

Set BOOKPARSE_DEBUG=1 for verbose parse logging on stderr.
`)
}

func parseFile(args []string) (*bookpipe.ParsedDocument, string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "a file path is required")
		os.Exit(1)
	}
	path := args[0]

	cfg := bookpipe.Config{}
	if len(args) >= 2 {
		loaded, err := bookpipe.LoadConfig(args[1])
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}

	level := slog.LevelWarn
	if os.Getenv("BOOKPARSE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	data, err := os.ReadFile(path)
	if err != nil {
		fatal(err)
	}

	doc, err := bookpipe.New(cfg).Parse(context.Background(), data, path)
	if err != nil {
		fatal(err)
	}
	return doc, path
}

func cmdParse(args []string) {
	doc, _ := parseFile(args)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		fatal(err)
	}
}

func cmdInfo(args []string) {
	doc, path := parseFile(args)
	fmt.Printf("file:    %s\n", path)
	fmt.Printf("title:   %s\n", doc.Title)
	fmt.Printf("author:  %s\n", doc.Author)
	fmt.Printf("cover:   %v\n", doc.CoverImage != "")
	if m := doc.Metadata; m != nil {
		if m.ISBN != "" {
			fmt.Printf("isbn:    %s\n", m.ISBN)
		}
		if m.Publisher != "" {
			fmt.Printf("publisher: %s\n", m.Publisher)
		}
		if m.PublicationYear != 0 {
			fmt.Printf("year:    %d\n", m.PublicationYear)
		}
		if m.Language != "" {
			fmt.Printf("language: %s\n", m.Language)
		}
		fmt.Printf("slug:    %s / %s\n", m.NormalizedTitle, m.NormalizedAuthor)
	}
	fmt.Printf("chapters: %d, markdown: %d bytes\n", len(doc.Chapters), len(doc.Markdown))
}

func cmdChapters(args []string) {
	doc, _ := parseFile(args)
	for _, ch := range doc.Chapters {
		fmt.Printf("%3d  h%d  %-50s  %d chars\n", ch.Order, ch.Level, ch.Title, len(ch.Content))
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
