package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"

	webview "github.com/webview/webview_go"

	"notemap/pkg/config"
)

var (
	configPath = flag.String("config", "configs/notemap.yaml", "Path to the server config file")
	serverBin  = flag.String("server", "./notemap", "Server binary started when none is running")
)

func main() {
	flag.Parse()

	// The server address comes from the shared config file
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Webview requires main thread
	runtime.LockOSThread()

	w := webview.New(false)
	defer w.Destroy()

	w.SetTitle("notemap")
	w.SetSize(1024, 768, webview.HintNone)

	// Go bindings calling JS functions
	logProxy := func(msg string) {
		w.Dispatch(func() {
			w.Eval("window.addLogLine(" + escapeJS(msg) + ")")
		})
	}
	appProxy := func(url string) {
		w.Dispatch(func() {
			w.Eval("window.enableApp(" + escapeJS(url) + ")")
		})
	}

	mgr := NewManager(logProxy, appProxy, cfg.Server.Address, *serverBin)
	defer mgr.Stop()

	// The shell page is served locally so the map frame shares an http origin
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to listen: %v\n", err)
		os.Exit(1)
	}
	defer ln.Close()

	go func() {
		_ = http.Serve(ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(htmlContent))
		}))
	}()

	w.Navigate("http://" + ln.Addr().String())
	mgr.Start()
	w.Run()
}

func escapeJS(s string) string {
	b, _ := json.Marshal(s)
	// json.Marshal returns "string", surrounding quotes included.
	return string(b)
}
