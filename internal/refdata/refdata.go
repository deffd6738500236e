// Package refdata holds the static lookup tables the dashboard resolves feed
// identifiers against: route id -> route name and destinations, stop id ->
// stop name, provider id -> operator name. The built-in tables cover the
// routes and operators commonly present in the Taipei feeds; deployments can
// shadow or extend them with a YAML file.
package refdata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RouteInfo describes one route: its public name and the terminal shown for
// each direction of travel.
type RouteInfo struct {
	Name     string `yaml:"name"`
	Outbound string `yaml:"outbound"`
	Inbound  string `yaml:"inbound"`
}

// Tables resolves feed identifiers to display names. Lookups fall back to the
// identifier itself so unknown ids remain visible rather than blank.
type Tables struct {
	routes    map[string]RouteInfo
	stops     map[string]string
	providers map[string]string
}

// Builtin returns tables seeded with the known Taipei routes, stops and
// operators.
func Builtin() *Tables {
	return &Tables{
		routes: map[string]RouteInfo{
			"10832":  {Name: "307", Outbound: "撫遠街", Inbound: "板橋"},
			"104170": {Name: "262區", Outbound: "民生社區", Inbound: "中和"},
			"109610": {Name: "299", Outbound: "永春高中", Inbound: "輔大"},
			"161157": {Name: "265區", Outbound: "行政院", Inbound: "重慶國中"},
			"161408": {Name: "651", Outbound: "臺北市政府", Inbound: "板橋"},
			"10711":  {Name: "204", Outbound: "東園", Inbound: "麥帥新城"},
			"15341":  {Name: "604", Outbound: "民生社區", Inbound: "板橋"},
			"11752":  {Name: "307(經西藏路)", Outbound: "撫遠街", Inbound: "板橋"},
			"10325":  {Name: "234", Outbound: "西門", Inbound: "板橋"},
		},
		stops: map[string]string{
			"11752":  "捷運板橋站",
			"11730":  "板橋公車站",
			"11735":  "新北市政府",
			"11749":  "環球購物中心",
			"11716":  "積穗",
			"11700":  "員山",
			"11706":  "中和高中",
			"11745":  "連城路",
			"11722":  "華中橋",
			"11725":  "果菜市場",
			"36032":  "民生社區",
			"36100":  "長庚醫院",
			"36063":  "臺北小巨蛋",
			"36054":  "忠孝敦化路口",
			"129829": "捷運忠孝復興站",
		},
		providers: map[string]string{
			"100":  "臺北客運",
			"200":  "大都會客運",
			"300":  "中興巴士",
			"400":  "光華巴士",
			"500":  "大有巴士",
			"600":  "大南汽車",
			"700":  "欣欣客運",
			"800":  "大好",
			"900":  "指南客運",
			"5300": "統聯客運",
		},
	}
}

// overrideFile is the YAML shape accepted by LoadOverrides.
type overrideFile struct {
	Routes    map[string]RouteInfo `yaml:"routes"`
	Stops     map[string]string    `yaml:"stops"`
	Providers map[string]string    `yaml:"providers"`
}

// LoadOverrides merges entries from a YAML file into the tables, shadowing
// built-in entries with the same id.
func (t *Tables) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read reference data file: %w", err)
	}
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse reference data file: %w", err)
	}
	for id, info := range f.Routes {
		t.routes[id] = info
	}
	for id, name := range f.Stops {
		t.stops[id] = name
	}
	for id, name := range f.Providers {
		t.providers[id] = name
	}
	return nil
}

// RouteInfo returns the route entry for an id, if known.
func (t *Tables) RouteInfo(id string) (RouteInfo, bool) {
	info, ok := t.routes[id]
	return info, ok
}

// RouteName returns the public route name, or the id itself when unknown.
func (t *Tables) RouteName(id string) string {
	if info, ok := t.routes[id]; ok && info.Name != "" {
		return info.Name
	}
	return id
}

// StopName returns the stop name, or the id itself when unknown.
func (t *Tables) StopName(id string) string {
	if name, ok := t.stops[id]; ok {
		return name
	}
	return id
}

// ProviderName returns the operator name, or the id itself when unknown.
func (t *Tables) ProviderName(id string) string {
	if name, ok := t.providers[id]; ok {
		return name
	}
	return id
}
