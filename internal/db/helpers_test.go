package db

import "github.com/banshee-data/slr.track/internal/trail"

func testStaticOptions() trail.StaticOptions {
	return trail.StaticOptions{MinSpeed: 0, MaxSpeed: 1, Opacity: 1}
}
