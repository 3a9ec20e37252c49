// Package catalog holds the static set of votable entities. The set is loaded
// once at startup and never mutated, so lookups need no locking.
package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	dErrors "cityrater/pkg/domain-errors"
)

//go:embed data/*.json
var embedded embed.FS

// Kind distinguishes the two independent entity sets.
type Kind string

const (
	KindCity    Kind = "city"
	KindAirport Kind = "airport"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindCity, KindAirport}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k == KindCity || k == KindAirport
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind validates a kind coming from outside the process.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown entity kind %q", s))
	}
	return k, nil
}

// Entity is one votable place.
type Entity struct {
	Kind    Kind
	ID      string
	Name    string
	Country string
	Flag    string
	// Airports only.
	Code string
	City string
}

type cityJSON struct {
	CityID  string `json:"cityId"`
	Name    string `json:"name"`
	Country string `json:"country"`
	Flag    string `json:"flag"`
}

type airportJSON struct {
	AirportID string `json:"airportId"`
	Code      string `json:"airport_code"`
	Name      string `json:"airport_name"`
	City      string `json:"airport_city"`
	Country   string `json:"country"`
	Flag      string `json:"flag"`
}

// MarshalJSON renders the field names clients already consume for each kind.
func (e Entity) MarshalJSON() ([]byte, error) {
	if e.Kind == KindAirport {
		return json.Marshal(airportJSON{
			AirportID: e.ID, Code: e.Code, Name: e.Name, City: e.City, Country: e.Country, Flag: e.Flag,
		})
	}
	return json.Marshal(cityJSON{CityID: e.ID, Name: e.Name, Country: e.Country, Flag: e.Flag})
}

// Fallback describes an id that is no longer in the catalog.
func Fallback(kind Kind, id string) Entity {
	return Entity{Kind: kind, ID: id, Name: id, Country: "Unknown"}
}

type entitySet struct {
	list []Entity
	byID map[string]Entity
}

// Catalog is an immutable, kind-partitioned entity index.
type Catalog struct {
	sets map[Kind]*entitySet
}

// New builds a catalog from explicit entity lists. Duplicate ids keep the
// first occurrence.
func New(cities, airports []Entity) *Catalog {
	c := &Catalog{sets: make(map[Kind]*entitySet, len(Kinds))}
	c.sets[KindCity] = newSet(KindCity, cities)
	c.sets[KindAirport] = newSet(KindAirport, airports)
	return c
}

func newSet(kind Kind, entities []Entity) *entitySet {
	s := &entitySet{byID: make(map[string]Entity, len(entities))}
	for _, e := range entities {
		e.Kind = kind
		if e.ID == "" {
			continue
		}
		if _, dup := s.byID[e.ID]; dup {
			continue
		}
		s.byID[e.ID] = e
		s.list = append(s.list, e)
	}
	return s
}

// Load reads both datasets. An empty path selects the embedded dataset.
func Load(citiesPath, airportsPath string) (*Catalog, error) {
	cityBytes, err := readSource(citiesPath, "data/cities.json")
	if err != nil {
		return nil, err
	}
	airportBytes, err := readSource(airportsPath, "data/airports.json")
	if err != nil {
		return nil, err
	}

	var cities []cityJSON
	if err := json.Unmarshal(cityBytes, &cities); err != nil {
		return nil, fmt.Errorf("decode cities: %w", err)
	}
	var airports []airportJSON
	if err := json.Unmarshal(airportBytes, &airports); err != nil {
		return nil, fmt.Errorf("decode airports: %w", err)
	}

	cityEntities := make([]Entity, 0, len(cities))
	for _, c := range cities {
		cityEntities = append(cityEntities, Entity{ID: c.CityID, Name: c.Name, Country: c.Country, Flag: c.Flag})
	}
	airportEntities := make([]Entity, 0, len(airports))
	for _, a := range airports {
		airportEntities = append(airportEntities, Entity{
			ID: a.AirportID, Name: a.Name, Code: a.Code, City: a.City, Country: a.Country, Flag: a.Flag,
		})
	}
	return New(cityEntities, airportEntities), nil
}

func readSource(path, embeddedName string) ([]byte, error) {
	if path == "" {
		return embedded.ReadFile(embeddedName)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return b, nil
}

// Get looks up an entity by id.
func (c *Catalog) Get(kind Kind, id string) (Entity, bool) {
	s, ok := c.sets[kind]
	if !ok {
		return Entity{}, false
	}
	e, ok := s.byID[id]
	return e, ok
}

// Exists reports whether id is a known entity of kind.
func (c *Catalog) Exists(kind Kind, id string) bool {
	_, ok := c.Get(kind, id)
	return ok
}

// Describe returns the entity or a fallback for ids outside the catalog.
func (c *Catalog) Describe(kind Kind, id string) Entity {
	if e, ok := c.Get(kind, id); ok {
		return e
	}
	return Fallback(kind, id)
}

// List returns every entity of kind in dataset order. Callers must not
// modify the returned slice.
func (c *Catalog) List(kind Kind) []Entity {
	if s, ok := c.sets[kind]; ok {
		return s.list
	}
	return nil
}

// Size returns the number of entities of kind.
func (c *Catalog) Size(kind Kind) int {
	return len(c.List(kind))
}
