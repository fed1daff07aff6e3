package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	readyAttempts = 30
	readyInterval = time.Second
)

// Manager starts the notemap server when needed and reports when the map can load.
type Manager struct {
	logFunc    func(string)
	appFunc    func(string)
	serverAddr string
	serverBin  string
	client     *http.Client

	mu        sync.Mutex
	serverCmd *exec.Cmd
	// interval between readiness checks, shortened by tests
	interval time.Duration
}

func NewManager(log, app func(string), serverAddr, serverBin string) *Manager {
	return &Manager{
		logFunc:    log,
		appFunc:    app,
		serverAddr: serverAddr,
		serverBin:  serverBin,
		client:     &http.Client{Timeout: time.Second},
		interval:   readyInterval,
	}
}

func (m *Manager) log(msg string) {
	if m.logFunc != nil {
		m.logFunc(msg)
	}
}

// Start checks for a running server, launches one otherwise and waits for it in the background.
func (m *Manager) Start() {
	go m.start()
}

func (m *Manager) start() bool {
	if m.isServerReady() {
		m.log("> Server already active.")
		m.appFunc(m.baseURL())
		return true
	}

	m.log(fmt.Sprintf("> Server not running. Starting %s...", m.serverBin))
	go m.runServer()

	m.log("> Waiting for server...")
	for i := 0; i < readyAttempts; i++ {
		if m.isServerReady() {
			m.log("> Server ready!")
			m.appFunc(m.baseURL())
			return true
		}
		time.Sleep(m.interval)
	}
	m.log("> Error: Server timed out.")
	return false
}

// Stop asks a server started by this manager to shut down.
func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.serverCmd != nil
	m.mu.Unlock()
	if !started {
		return
	}
	if err := m.shutdown(); err != nil {
		fmt.Printf("> API shutdown failed: %v\n", err)
		return
	}
	fmt.Println("> Shutdown command sent successfully.")
}

func (m *Manager) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL()+"/api/shutdown", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (m *Manager) runServer() {
	cmd := exec.Command(m.serverBin)
	m.mu.Lock()
	m.serverCmd = cmd
	m.mu.Unlock()

	if err := m.runWithOutput(cmd); err != nil {
		m.log(fmt.Sprintf("Server exited with error: %v", err))
	}
}

func (m *Manager) runWithOutput(cmd *exec.Cmd) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	go m.streamReader(stdout)
	go m.streamReader(stderr)

	return cmd.Wait()
}

func (m *Manager) streamReader(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.log(scanner.Text())
	}
}

func (m *Manager) baseURL() string {
	return "http://" + resolveAddr(m.serverAddr)
}

// resolveAddr turns listen addresses into dialable ones. 127.0.0.1 avoids
// resolution delays of localhost.
func resolveAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	if rest, ok := strings.CutPrefix(addr, "localhost:"); ok {
		return "127.0.0.1:" + rest
	}
	return addr
}

func (m *Manager) isServerReady() bool {
	resp, err := m.client.Get(m.baseURL() + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
