package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "simulator observer base url")
	asJSON := fs.Bool("json", false, "print the JSON report instead of text")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/report"
	if !*asJSON {
		u += "?format=text"
	}
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Print(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
