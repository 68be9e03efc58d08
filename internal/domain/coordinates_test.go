package domain

import "testing"

func TestCoordinatesValidate(t *testing.T) {
	cases := []struct {
		name    string
		c       Coordinates
		wantErr bool
	}{
		{"barcelona", Coordinates{Lon: 2.1734, Lat: 41.3851}, false},
		{"antimeridian", Coordinates{Lon: 180, Lat: 0}, false},
		{"longitude too large", Coordinates{Lon: 181, Lat: 0}, true},
		{"latitude too small", Coordinates{Lon: 0, Lat: -90.5}, true},
	}

	for _, tc := range cases {
		err := tc.c.Validate()
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestCoordsToList(t *testing.T) {
	got := Coordinates{Lon: 2.1734, Lat: 41.3851}.CoordsToList()
	if len(got) != 2 || got[0] != 2.1734 || got[1] != 41.3851 {
		t.Errorf("unexpected list: %v", got)
	}
}
