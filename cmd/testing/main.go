package main

import (
	"encoding/json"
	"fmt"
	"github.com/gorilla/websocket"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

var URL, _ = os.LookupEnv("API_URL")
var PORT, _ = os.LookupEnv("API_PORT")
var apiURL = fmt.Sprintf("http://%s:%s/api/v1", URL, PORT)
var streamURL = fmt.Sprintf("ws://%s:%s/api/v1/sync/stream", URL, PORT)

const (
	days    = 7
	timeout = 2 * time.Minute
)

type Transaction struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
}

type Progress struct {
	JobID       string       `json:"job_id"`
	Status      string       `json:"status"`
	Transaction *Transaction `json:"transaction"`
}

func main() {
	conn, _, err := websocket.DefaultDialer.Dial(streamURL, nil)
	if err != nil {
		fmt.Println("Error opening progress stream:", err)
		os.Exit(1)
	}
	defer conn.Close()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	imported, err := importRange(from, to)
	if err != nil {
		fmt.Println("Error importing transactions:", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d new transactions\n", imported)

	ids := make([]string, 0)
	for _, status := range []string{"pending", "failed"} {
		transactions, err := listTransactions(status)
		if err != nil {
			fmt.Println("Error listing transactions:", err)
			os.Exit(1)
		}
		for _, tx := range transactions {
			ids = append(ids, tx.ID)
		}
	}
	if len(ids) == 0 {
		fmt.Println("Nothing to sync")
		return
	}

	jobID, err := submit(ids)
	if err != nil {
		fmt.Println("Error submitting sync:", err)
		os.Exit(1)
	}
	fmt.Printf("Sync job %s started for %d transactions\n", jobID, len(ids))

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		var msg Progress
		if err := conn.ReadJSON(&msg); err != nil {
			fmt.Println("Progress stream closed:", err)
			return
		}
		if msg.Transaction != nil {
			fmt.Printf("  %s %s %s %s\n", msg.Transaction.ID, msg.Transaction.Type, msg.Transaction.Status, msg.Transaction.FailureReason)
		}
		if msg.JobID != jobID || msg.Status == "" {
			continue
		}
		fmt.Println(msg.Status)
		if strings.HasPrefix(msg.Status, "Sync finished") || msg.Status == "Nothing to sync" {
			return
		}
	}
}

func importRange(from, to time.Time) (int, error) {
	query := url.Values{"from": {from.Format("2006-01-02")}, "to": {to.Format("2006-01-02")}}
	resp, err := http.Post(apiURL+"/import?"+query.Encode(), "application/json", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("wrong status code: %d", resp.StatusCode)
	}

	var body struct {
		Imported int `json:"imported"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.Imported, nil
}

func listTransactions(status string) ([]Transaction, error) {
	resp, err := http.Get(apiURL + "/transactions?status=" + status)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wrong status code: %d", resp.StatusCode)
	}

	var transactions []Transaction
	err = json.NewDecoder(resp.Body).Decode(&transactions)
	return transactions, err
}

func submit(ids []string) (string, error) {
	query := url.Values{"transaction_ids": ids}
	resp, err := http.Post(apiURL+"/sync?"+query.Encode(), "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("wrong status code: %d", resp.StatusCode)
	}

	var body struct {
		JobID string `json:"job_id"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.JobID, nil
}
