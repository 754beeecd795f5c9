package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type target struct {
	StudentID    string `json:"studentId,omitempty"`
	ClassID      string `json:"classId,omitempty"`
	ExpectStatus int    `json:"expectStatus"`
	Critical     bool   `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type exportData struct {
	Kind     string `json:"kind"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Total    int    `json:"total"`
}

type envelope struct {
	Data  *exportData     `json:"data"`
	Error json.RawMessage `json:"error"`
}

type check struct {
	Target      target
	Status      int
	StatusMatch bool
	Artifact    string
	Error       error
	Duration    time.Duration
}

func main() {
	var (
		base        string
		prefix      string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&prefix, "prefix", "/api/v1", "API prefix")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "export_smoke", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		checks   []check
		breaking int
		optional int
	)
	for _, t := range targets {
		res := runTarget(client, strings.TrimRight(base, "/"), prefix, t)
		if res.Error != nil || !res.StatusMatch {
			if t.Critical {
				breaking++
			} else {
				optional++
			}
		}
		checks = append(checks, res)
	}

	printReport(checks)

	fmt.Printf("Breaking failures: %d, Optional failures: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	for i := range cfg.Targets {
		if cfg.Targets[i].ExpectStatus == 0 {
			cfg.Targets[i].ExpectStatus = http.StatusOK
		}
	}
	return cfg.Targets, nil
}

func runTarget(client *http.Client, base, prefix string, tgt target) check {
	res := check{Target: tgt}
	payload, err := json.Marshal(map[string]string{"studentId": tgt.StudentID, "classId": tgt.ClassID})
	if err != nil {
		res.Error = err
		return res
	}

	start := time.Now()
	resp, err := client.Post(base+prefix+"/plans/export", "application/json", bytes.NewReader(payload))
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = fmt.Errorf("export request failed: %w", err)
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	res.StatusMatch = resp.StatusCode == tgt.ExpectStatus
	if resp.StatusCode != http.StatusOK {
		return res
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		res.Error = fmt.Errorf("decode export response: %w", err)
		return res
	}
	if env.Data == nil || env.Data.URL == "" {
		res.Error = errors.New("export response has no download url")
		return res
	}

	dl, err := client.Get(base + env.Data.URL)
	if err != nil {
		res.Error = fmt.Errorf("download failed: %w", err)
		return res
	}
	defer dl.Body.Close()
	if dl.StatusCode != http.StatusOK {
		res.Error = fmt.Errorf("download returned %d", dl.StatusCode)
		return res
	}
	body, err := io.ReadAll(dl.Body)
	if err != nil {
		res.Error = fmt.Errorf("read download: %w", err)
		return res
	}
	res.Artifact = env.Data.Filename
	res.Error = verifyArtifact(env.Data.Filename, body, env.Data.Total)
	return res
}

// verifyArtifact checks that a document looks like its format and that an
// archive holds one entry per exported student.
func verifyArtifact(filename string, body []byte, total int) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		if !bytes.HasPrefix(body, []byte("%PDF-")) {
			return errors.New("document is not a PDF")
		}
	case ".docx":
		if _, err := zip.NewReader(bytes.NewReader(body), int64(len(body))); err != nil {
			return fmt.Errorf("document is not a docx package: %w", err)
		}
	case ".zip":
		zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
		if err != nil {
			return fmt.Errorf("archive unreadable: %w", err)
		}
		if total > 0 && len(zr.File) != total {
			return fmt.Errorf("archive holds %d documents, want %d", len(zr.File), total)
		}
	default:
		return fmt.Errorf("unexpected artifact %s", filename)
	}
	return nil
}

func printReport(results []check) {
	fmt.Println("Export Smoke Report")
	fmt.Println("===================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.StatusMatch {
			status = "DIFF"
		}
		fmt.Printf("[%s] studentId=%q classId=%q\n", status, res.Target.StudentID, res.Target.ClassID)
		fmt.Printf("  Status: %d want %d (%s)\n", res.Status, res.Target.ExpectStatus, res.Duration)
		if res.Artifact != "" {
			fmt.Printf("  Artifact: %s\n", res.Artifact)
		}
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		}
	}
}
