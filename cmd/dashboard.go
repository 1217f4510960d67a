package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/urfave/cli/v2"
)

// dashboardCmd polls this gateway's own /stats endpoint and renders a
// live terminal dashboard. Read-only operator tooling: it has no effect
// on gateway behavior and is never invoked by the server itself.
func dashboardCmd() *cli.Command {
	return &cli.Command{
		Name:  "dashboard",
		Usage: "Live terminal dashboard polling a gateway's /stats endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Gateway base URL",
				Value: "http://127.0.0.1:8080",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Poll interval",
				Value: 2 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			return runDashboard(c.String("addr"), c.Duration("interval"))
		},
	}
}

func runDashboard(addr string, interval time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("dashboard: init terminal: %w", err)
	}
	defer ui.Close()

	statsBox := widgets.NewParagraph()
	statsBox.Title = "arcade-gateway stats"
	statsBox.SetRect(0, 0, 80, 15)

	draw := func() {
		body, err := fetchStats(addr)
		if err != nil {
			statsBox.Text = fmt.Sprintf("error: %v", err)
		} else {
			statsBox.Text = body
		}
		ui.Render(statsBox)
	}

	draw()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	events := ui.PollEvents()
	for {
		select {
		case e := <-events:
			if e.Type == ui.KeyboardEvent && (e.ID == "q" || e.ID == "<C-c>") {
				return nil
			}
		case <-ticker.C:
			draw()
		}
	}
}

func fetchStats(addr string) (string, error) {
	resp, err := http.Get(addr + "/stats")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var v map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
