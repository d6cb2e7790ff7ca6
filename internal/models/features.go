package models

// CellFeature aggregates ingested crime and map data for one grid cell.
type CellFeature struct {
	CellLat        float64        `json:"cell_lat"` // south-west corner
	CellLon        float64        `json:"cell_lon"`
	CrimeCount     int            `json:"crime_count"`
	CrimeByType    map[string]int `json:"crime_by_type"`
	Streetlights   int            `json:"streetlights"`
	PoliceStations int            `json:"police_stations"`
	OtherFeatures  int            `json:"other_features"`
	RiskIndex      float64        `json:"risk_index"`
}
