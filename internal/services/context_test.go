package services_test

import (
	"context"
	"testing"

	"vigil/internal/services"
)

func TestContextCarriesFrameIdentity(t *testing.T) {
	ctx := services.WithEventID(
		services.WithFrameSeq(
			services.WithStage(
				services.WithSourceID(context.Background(), "driveway"),
				"suppression"),
			0),
		"01920000-0000-7000-8000-000000000000")

	if id, ok := services.SourceIDFromContext(ctx); !ok || id != "driveway" {
		t.Fatalf("unexpected source id: %q %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "suppression" {
		t.Fatalf("unexpected stage: %q %v", stage, ok)
	}
	if seq, ok := services.FrameSeqFromContext(ctx); !ok || seq != 0 {
		t.Fatalf("frame zero must still be recorded: %d %v", seq, ok)
	}
	if id, ok := services.EventIDFromContext(ctx); !ok || id != "01920000-0000-7000-8000-000000000000" {
		t.Fatalf("unexpected event id: %q %v", id, ok)
	}
}

func TestEmptyValuesAreNotRecorded(t *testing.T) {
	ctx := services.WithEventID(services.WithStage(services.WithSourceID(context.Background(), ""), ""), "")

	if _, ok := services.SourceIDFromContext(ctx); ok {
		t.Fatal("expected no source id")
	}
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage")
	}
	if _, ok := services.EventIDFromContext(ctx); ok {
		t.Fatal("expected no event id")
	}
	if _, ok := services.FrameSeqFromContext(ctx); ok {
		t.Fatal("expected no frame seq")
	}
}
