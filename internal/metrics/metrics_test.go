package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 1}),
				WithMetricsEnabled(true),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should register collectors on that registry", func() {
				So(manager, ShouldNotBeNil)
				manager.reloads.WithLabelValues("full_recreate", "ok").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestRecording(t *testing.T) {
	Convey("Given the process-wide manager", t, func() {
		Convey("When recording pipeline metrics", func() {
			So(func() {
				RecordFetch("mms_ephemeris", nil, 20*time.Millisecond)
				RecordFetch("mms_ephemeris", errors.New("boom"), time.Millisecond)
				RecordEphemerisReady()
				RecordTransformUnavailable()
				RecordTrackDegraded()
				RecordWhiskers(10, 2, 1)
				RecordReload("entity_refresh", nil, time.Second)
				RecordStaleGeneration("pipeline")
				UpdateGeneration(7)
			}, ShouldNotPanic)
		})

		Convey("When scraping the handler", func() {
			RecordStaleGeneration("controller")
			rec := httptest.NewRecorder()
			Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

			Convey("Then the output includes viewer metrics", func() {
				So(rec.Code, ShouldEqual, 200)
				So(strings.Contains(rec.Body.String(), "lsmms_viewer_stale_generations_total"), ShouldBeTrue)
			})
		})

		Convey("When recording is disabled", func() {
			SetEnabled(false)
			defer SetEnabled(true)
			So(func() { RecordWhiskers(1, 1, 1) }, ShouldNotPanic)
		})
	})
}
