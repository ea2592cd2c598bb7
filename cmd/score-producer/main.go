package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/score-tracker/internal/domain"
)

// apiList is the envelope of the list endpoints
type apiList[T any] struct {
	Success bool   `json:"success"`
	Data    []T    `json:"data"`
	Error   string `json:"error"`
}

func fetchIDs[T any](client *http.Client, url string, idOf func(T) string) ([]string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list apiList[T]
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", url, err)
	}
	if !list.Success {
		return nil, fmt.Errorf("%s: %s", url, list.Error)
	}

	ids := make([]string, 0, len(list.Data))
	for _, item := range list.Data {
		ids = append(ids, idOf(item))
	}
	return ids, nil
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "score-submissions", "Kafka topic")
	apiURL := flag.String("api", "http://localhost:8080", "Score tracker API used to discover games and players")
	gameList := flag.String("games", "", "Game IDs (comma-separated); discovered from the API when empty")
	playerList := flag.String("players", "", "Player IDs (comma-separated); discovered from the API when empty")
	updatesPerSecond := flag.Int("rate", 10, "Scores per second")
	maxScore := flag.Int("max-score", 100, "Highest generated score")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")
	games := splitIDs(*gameList)
	players := splitIDs(*playerList)

	httpClient := &http.Client{Timeout: 10 * time.Second}
	if len(games) == 0 {
		ids, err := fetchIDs(httpClient, *apiURL+"/api/v1/games", domain.GameID)
		if err != nil {
			log.Fatalf("Failed to discover games: %v", err)
		}
		games = ids
	}
	if len(players) == 0 {
		ids, err := fetchIDs(httpClient, *apiURL+"/api/v1/players", domain.PlayerID)
		if err != nil {
			log.Fatalf("Failed to discover players: %v", err)
		}
		players = ids
	}
	if len(games) == 0 || len(players) == 0 {
		log.Fatalf("Need at least one game and one player (have %d games, %d players)", len(games), len(players))
	}
	if *updatesPerSecond < 1 {
		*updatesPerSecond = 1
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Kafka Score Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Games:            %d\n", len(games))
	fmt.Printf("  Players:          %d\n", len(players))
	fmt.Printf("  Scores/sec:       %d\n", *updatesPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	interval := time.Second / time.Duration(*updatesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var produced int64
	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached")
				return
			}

			submission := domain.ScoreSubmission{
				GameID:   games[rand.Intn(len(games))],
				PlayerID: players[rand.Intn(len(players))],
				Value:    float64(rand.Intn(*maxScore + 1)),
			}
			data, err := json.Marshal(submission)
			if err != nil {
				log.Printf("Failed to marshal message: %v", err)
				continue
			}

			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(submission.GameID),
				Value: sarama.ByteEncoder(data),
			}
			produced++

		case <-statsTicker.C:
			fmt.Printf("[%s] Produced: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				produced,
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
