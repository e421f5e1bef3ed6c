package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Location is what IPinfo knows about a client IP.
type Location struct {
	City   string
	Region string
	Raw    json.RawMessage // Full IPinfo response, relayed as-is
}

// Place is the best human place name: city, then region.
func (l Location) Place() string {
	if l.City != "" {
		return l.City
	}
	return l.Region
}

// Weather is the current condition summary returned to the browser.
type Weather struct {
	TempC         string `json:"temp_c"`
	ConditionText string `json:"condition_text"`
	ConditionIcon string `json:"condition_icon"`
}

// CurrentConditions is the subset of a WeatherAPI current.json answer we use.
type CurrentConditions struct {
	TempC   *float64
	Text    string
	IconURL string
}

// NewWeather renders conditions for display: a rounded °C temperature and an
// absolute icon URL.
func NewWeather(c CurrentConditions) Weather {
	w := Weather{ConditionText: c.Text}
	if c.TempC != nil && *c.TempC != 0 {
		w.TempC = fmt.Sprintf("%d°C", int(math.Round(*c.TempC)))
	}
	if c.IconURL != "" {
		w.ConditionIcon = c.IconURL
		if strings.HasPrefix(c.IconURL, "//") {
			w.ConditionIcon = "https:" + c.IconURL
		}
	}
	return w
}
