package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/config"
	"github.com/mmdatafocus/batchtrace_backend/models"
	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/mmdatafocus/batchtrace_backend/workflow"
)

func main() {
	batchSize := flag.Int("batch-size", 50, "Records claimed per poll")
	pollInterval := flag.Duration("poll-interval", 500*time.Millisecond, "Sleep between polls")
	maxAttempts := flag.Int("max-attempts", 20, "Publish attempts before a record is marked DEAD")
	once := flag.Bool("once", false, "Dispatch a single batch and exit")
	status := flag.Bool("status", false, "Print record counts per publish status and exit")
	requeueDead := flag.Bool("requeue-dead", false, "Reset every DEAD record to PENDING and exit")
	reprocess := flag.String("reprocess", "", "Requeue FAILED/DEAD records of one aggregate, as <aggregate_type>:<aggregate_id>")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := config.GetLogger()
	db, err := config.ConnectDatabaseWithRetry(ctx, config.LoadDatabaseConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect database: %v\n", err)
		os.Exit(1)
	}
	switch {
	case *status:
		counts, err := models.CountOutboxByStatus(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "outbox status: %v\n", err)
			os.Exit(1)
		}
		for _, st := range utils.SortedKeys(counts) {
			fmt.Printf("%-10s %d\n", st, counts[st])
		}
		return
	case *requeueDead:
		n, err := models.RequeueDeadOutbox(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "requeue dead: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("requeued %d records\n", n)
		return
	case strings.TrimSpace(*reprocess) != "":
		aggregateType, aggregateId, ok := strings.Cut(strings.TrimSpace(*reprocess), ":")
		if !ok || aggregateId == "" {
			fmt.Fprintln(os.Stderr, "--reprocess must be <aggregate_type>:<aggregate_id>")
			os.Exit(1)
		}
		st, err := models.ReprocessOutbox(ctx, db, models.AggregateType(aggregateType), aggregateId)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reprocess: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("record %d is %s\n", st.RecordId, st.PublishStatus)
		return
	}

	publisher, err := config.NewPubSubPublisher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pubsub publisher: %v\n", err)
		os.Exit(1)
	}

	dispatcher := workflow.NewOutboxDispatcher(db, logger, publisher)
	dispatcher.BatchSize = *batchSize
	dispatcher.PollInterval = *pollInterval
	dispatcher.MaxAttempts = *maxAttempts

	if *once {
		sent, err := dispatcher.DispatchOnce(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dispatch: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("published %d records\n", sent)
		return
	}
	logger.WithField("dispatcher_id", dispatcher.DispatcherID).Info("outbox dispatcher started")
	dispatcher.Run(ctx)
}
