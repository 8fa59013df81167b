// Command seed populates the database with demo comment threads.
package main

import (
	"flag"
	"log"

	"murmur/internal/config"
	"murmur/internal/database"
	"murmur/internal/seed"
)

func main() {
	opts := seed.DefaultOptions()
	flag.IntVar(&opts.Items, "items", opts.Items, "Number of content items to comment on")
	flag.IntVar(&opts.RootsPerItem, "roots", opts.RootsPerItem, "Root comments per item")
	flag.IntVar(&opts.MaxReplies, "replies", opts.MaxReplies, "Max replies under any comment")
	flag.IntVar(&opts.MaxDepth, "depth", opts.MaxDepth, "Deepest reply level")
	flag.IntVar(&opts.Users, "users", opts.Users, "Synthetic author pool size")
	shouldClean := flag.Bool("clean", true, "Clean comment data before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(db, opts)

	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	if err := s.Run(); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Done. Database populated with demo threads.")
}
