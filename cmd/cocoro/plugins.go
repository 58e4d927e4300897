package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/joshp123/gohome-cocoro/internal/config"
	"github.com/joshp123/gohome-cocoro/internal/core"
)

func pluginsCmd(ctx context.Context, cfg *config.Config, args []string, out outputMode) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	base := daemonURL(cfg)

	switch args[0] {
	case "list":
		var resp struct {
			Plugins []core.PluginSummary `json:"plugins"`
		}
		if err := getJSON(ctx, base+"/plugins", &resp); err != nil {
			fatal("list plugins", err)
		}
		if out.structured() {
			out.print(resp)
			return
		}
		rows := [][]string{{"ID", "NAME", "VERSION", "STATUS"}}
		for _, p := range resp.Plugins {
			rows = append(rows, []string{p.PluginID, p.DisplayName, p.Version, p.Status})
		}
		out.table(rows)
	case "describe":
		if len(args) < 2 {
			fatal("describe", fmt.Errorf("missing plugin id"))
		}
		var desc core.PluginDescriptor
		if err := getJSON(ctx, base+"/plugins/"+url.PathEscape(args[1]), &desc); err != nil {
			fatal("describe plugin", err)
		}
		if out.structured() {
			out.print(desc)
			return
		}
		fmt.Printf("id: %s\n", desc.PluginID)
		fmt.Printf("name: %s\n", desc.DisplayName)
		fmt.Printf("version: %s\n", desc.Version)
		fmt.Printf("status: %s\n", desc.Status)
		if desc.HealthMessage != "" {
			fmt.Printf("health: %s\n", desc.HealthMessage)
		}
		fmt.Println("services:")
		for _, svc := range desc.Services {
			fmt.Printf("  - %s\n", svc)
		}
		fmt.Println("dashboards:")
		for _, dash := range desc.Dashboards {
			fmt.Printf("  - %s (%s)\n", dash.Name, dash.Path)
		}
		fmt.Println("agents_md:")
		fmt.Println(desc.AgentsMD)
	default:
		usage()
		os.Exit(2)
	}
}

// daemonURL prefers GOHOME_HTTP_URL, then the configured listen address.
func daemonURL(cfg *config.Config) string {
	if value := os.Getenv("GOHOME_HTTP_URL"); value != "" {
		return strings.TrimRight(value, "/")
	}
	host, port, err := net.SplitHostPort(cfg.Core.HTTPAddr)
	if err != nil {
		return "http://gohome:8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("not found")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
