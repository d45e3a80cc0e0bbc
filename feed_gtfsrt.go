package main

import (
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

const earthRadius = 6378137.0 // meters, WGS84 equatorial

// geoOrigin anchors the local metric frame (x east, y north) to WGS84.
type geoOrigin struct {
	Lat float64
	Lon float64
}

// project converts local meters to latitude/longitude with an
// equirectangular approximation around the origin.
func (o geoOrigin) project(x, y float64) (lat, lon float64) {
	lat = o.Lat + (y/earthRadius)*180/math.Pi
	lon = o.Lon + (x/(earthRadius*math.Cos(o.Lat*math.Pi/180)))*180/math.Pi
	return lat, lon
}

// compassBearing converts a heading measured counter-clockwise from the x axis
// to degrees clockwise from north.
func compassBearing(heading float64) float64 {
	return normalizeHeading(90 - heading)
}

type trackedVehicle struct {
	state     VehicleState
	updatedAt time.Time
}

// vehicleSnapshot keeps the latest state per vehicle. It implements Sink.
type vehicleSnapshot struct {
	mu       sync.Mutex
	vehicles map[string]trackedVehicle
	now      func() time.Time
}

func newVehicleSnapshot() *vehicleSnapshot {
	return &vehicleSnapshot{
		vehicles: make(map[string]trackedVehicle),
		now:      time.Now,
	}
}

func (s *vehicleSnapshot) Publish(v VehicleState) error {
	s.mu.Lock()
	s.vehicles[v.ID] = trackedVehicle{state: v, updatedAt: s.now()}
	s.mu.Unlock()
	return nil
}

// latest returns a copy of the tracked vehicles ordered by id.
func (s *vehicleSnapshot) latest() []trackedVehicle {
	s.mu.Lock()
	out := make([]trackedVehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, v)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].state.ID < out[j].state.ID })
	return out
}

// gtfsRtFeed serves the snapshot as a GTFS-Realtime VehiclePositions feed.
type gtfsRtFeed struct {
	snapshot *vehicleSnapshot
	origin   geoOrigin
	logger   *zap.Logger
}

func (f *gtfsRtFeed) feedMessage(now time.Time) *gtfs.FeedMessage {
	vehicles := f.snapshot.latest()
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: make([]*gtfs.FeedEntity, 0, len(vehicles)),
	}
	for _, tv := range vehicles {
		v := tv.state
		lat, lon := f.origin.project(v.X, v.Y)
		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id: proto.String(v.ID),
			Vehicle: &gtfs.VehiclePosition{
				Vehicle: &gtfs.VehicleDescriptor{
					Id:    proto.String(v.ID),
					Label: proto.String(v.ID),
				},
				Position: &gtfs.Position{
					Latitude:  proto.Float32(float32(lat)),
					Longitude: proto.Float32(float32(lon)),
					Bearing:   proto.Float32(float32(compassBearing(v.Heading))),
					Speed:     proto.Float32(float32(v.Speed)),
				},
				Timestamp: proto.Uint64(uint64(tv.updatedAt.Unix())),
			},
		})
	}
	return feed
}

func (f *gtfsRtFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := proto.Marshal(f.feedMessage(time.Now()))
	if err != nil {
		f.logger.Error("gtfs-rt marshal error", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	_, _ = w.Write(body)
}
