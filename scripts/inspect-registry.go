//go:build ignore

// Lists the mosque-to-calendar registry stored in Firestore. Run with:
//
//	go run scripts/inspect-registry.go -project <gcp-project>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

func main() {
	projectID := flag.String("project", "", "GCP project ID")
	collection := flag.String("collection", "calendars", "Firestore collection name")
	key := flag.String("key", "", "Show a single mosque key (optional)")
	flag.Parse()

	if *projectID == "" {
		log.Fatal("-project is required")
	}

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer client.Close()

	coll := client.Collection(*collection)

	if *key != "" {
		doc, err := coll.Doc(*key).Get(ctx)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", *key, err)
		}
		printDoc(doc.Data())
		return
	}

	iter := coll.Documents(ctx)
	count := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Fatalf("Error iterating documents: %v", err)
		}
		printDoc(doc.Data())
		count++
	}
	fmt.Printf("Total mappings: %d\n", count)
}

func printDoc(data map[string]interface{}) {
	key, _ := data["key"].(string)
	calendarID, _ := data["calendarId"].(string)
	fmt.Printf("%-30s %s\n", key, calendarID)
	if updated, ok := data["updatedAt"]; ok {
		fmt.Printf("%-30s updated %v\n", "", updated)
	}
}
