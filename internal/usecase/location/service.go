// Package location resolves user input into a point inside the operating
// country.
package location

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"lobang-bot/internal/domain"
)

// Suggestion counts for typed queries.
const (
	MinSuggestions = 3
	MaxSuggestions = 5
)

// PopularPlace is a curated location offered when typing fails.
type PopularPlace struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Service wraps the geocoder with the country guard.
type Service struct {
	geocoder domain.Geocoder
	country  domain.BoundingBox
	popular  []PopularPlace
	log      zerolog.Logger
}

// NewService creates the resolver.
func NewService(geocoder domain.Geocoder, country domain.BoundingBox, popular []PopularPlace, logger zerolog.Logger) *Service {
	return &Service{geocoder: geocoder, country: country, popular: popular, log: logger}
}

// ResolveGPS turns shared coordinates into a named location. Coordinates
// outside the country return ErrNotInCountry. Geocoder failure is not
// fatal: the point is still usable under a generic name.
func (s *Service) ResolveGPS(ctx context.Context, lat, lng float64) (domain.Location, error) {
	if !s.country.Contains(lat, lng) {
		return domain.Location{}, domain.ErrNotInCountry
	}
	loc, err := s.geocoder.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		s.log.Warn().Err(err).Float64("lat", lat).Float64("lng", lng).Msg("reverse geocode failed")
		return domain.Location{
			Latitude:    lat,
			Longitude:   lng,
			DisplayName: "Your Location",
			Source:      domain.LocationSourceGPS,
		}, nil
	}
	loc.Source = domain.LocationSourceGPS
	return loc, nil
}

// ResolveText suggests locations for a typed query. A best match outside
// the country returns ErrNotInCountry; other out-of-country suggestions
// are discarded. An empty result means the caller should offer the
// popular list.
func (s *Service) ResolveText(ctx context.Context, query string) ([]domain.Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	suggestions, err := s.geocoder.Autocomplete(ctx, query, MaxSuggestions)
	if err != nil {
		return nil, fmt.Errorf("autocomplete %q: %w", query, err)
	}

	kept := suggestions[:0]
	for i, sug := range suggestions {
		// Autocomplete predictions may carry no coordinates; those are
		// guarded later at ResolveSuggestion.
		if sug.Latitude == 0 && sug.Longitude == 0 {
			kept = append(kept, sug)
			continue
		}
		if !s.country.Contains(sug.Latitude, sug.Longitude) {
			if i == 0 {
				return nil, domain.ErrNotInCountry
			}
			continue
		}
		kept = append(kept, sug)
	}
	return kept, nil
}

// ResolveSuggestion resolves a picked suggestion's place ID to
// coordinates, enforcing the country guard.
func (s *Service) ResolveSuggestion(ctx context.Context, placeID string) (domain.Location, error) {
	loc, err := s.geocoder.PlaceDetails(ctx, placeID)
	if err != nil {
		return domain.Location{}, fmt.Errorf("place details %s: %w", placeID, err)
	}
	if !s.country.Contains(loc.Latitude, loc.Longitude) {
		return domain.Location{}, domain.ErrNotInCountry
	}
	loc.Source = domain.LocationSourceSuggestion
	return loc, nil
}

// ResolvePopular returns the curated place by name, or false when there is
// no such entry.
func (s *Service) ResolvePopular(name string) (domain.Location, bool) {
	for _, place := range s.popular {
		if strings.EqualFold(place.Name, name) {
			return domain.Location{
				Latitude:    place.Latitude,
				Longitude:   place.Longitude,
				DisplayName: place.Name,
				Area:        place.Name,
				Source:      domain.LocationSourcePopular,
			}, true
		}
	}
	return domain.Location{}, false
}

// Popular lists the curated places in their configured order.
func (s *Service) Popular() []PopularPlace {
	return s.popular
}

// DefaultPopularPlaces is the built-in curated list.
func DefaultPopularPlaces() []PopularPlace {
	return []PopularPlace{
		{Name: "Orchard Road", Latitude: 1.3048, Longitude: 103.8318},
		{Name: "Marina Bay", Latitude: 1.2838, Longitude: 103.8591},
		{Name: "Bugis", Latitude: 1.3009, Longitude: 103.8559},
		{Name: "Chinatown", Latitude: 1.2838, Longitude: 103.8433},
		{Name: "Tampines", Latitude: 1.3546, Longitude: 103.9437},
		{Name: "Jurong East", Latitude: 1.3329, Longitude: 103.7436},
	}
}
