package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"

	"github.com/aluiziolira/saturday-punter/models"
)

var readyTemplate = template.Must(template.New("ready").Parse(`<html>
<body>
<h2>Saturday Racing Data Ready</h2>
<p>The system has successfully downloaded and processed the latest data.</p>
<ul>
<li><b>Source File:</b> {{.Source}}</li>
<li><b>Total Runners:</b> {{.Runners}}</li>
<li><b>Venues:</b> {{.Venues}}</li>
<li><b>Ultimates (&gt; 90):</b> {{.Ultimates}}</li>
</ul>
<p>
<a href="{{.DashboardURL}}" style="background-color: #4CAF50; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px; font-weight: bold;">Open Trading Desk</a>
</p>
<p style="color: #666; font-size: 12px; margin-top: 20px;">
<i>Saturday Punter{{if .Simulation}} (Test Mode){{end}}</i><br>
<i>Processed: {{.Source}}</i>
</p>
</body>
</html>
`))

type readyData struct {
	Source       string
	Runners      string
	Venues       string
	Ultimates    string
	DashboardURL string
	Simulation   bool
}

// ReadyEmail renders the subject and HTML body announcing a cleaned set.
func ReadyEmail(set *models.SelectionSet, dashboardURL string) (string, string, error) {
	data := readyData{
		Source:       filepath.Base(set.Source),
		Runners:      fmt.Sprint(set.Stats.Rows),
		Venues:       fmt.Sprint(set.Stats.Venues),
		Ultimates:    fmt.Sprint(set.Stats.Ultimates),
		DashboardURL: dashboardURL,
	}
	body, err := render(data)
	if err != nil {
		return "", "", err
	}
	subject := fmt.Sprintf("Please choose Saturday Punter selections (%d Runners)", set.Stats.Rows)
	return subject, body, nil
}

// SimulationEmail renders the test message sent by notify-test.
func SimulationEmail(dashboardURL string) (string, string, error) {
	body, err := render(readyData{
		Source:       "Simulation_File.csv",
		Runners:      "999 (Simulation)",
		Venues:       "12",
		Ultimates:    "0",
		DashboardURL: dashboardURL,
		Simulation:   true,
	})
	if err != nil {
		return "", "", err
	}
	return "Please choose Saturday Punter selections (Simulation)", body, nil
}

func render(data readyData) (string, error) {
	var buf bytes.Buffer
	if err := readyTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}
