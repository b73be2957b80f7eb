package identity

import "testing"

func TestApplyRating(t *testing.T) {
	p := Profile{}
	p.ApplyRating(4)
	if p.Rating != 4 || p.RatingCount != 1 {
		t.Fatalf("first rating: got %v/%d", p.Rating, p.RatingCount)
	}
	p.ApplyRating(2)
	if p.Rating != 3 || p.RatingCount != 2 {
		t.Fatalf("running average: got %v/%d", p.Rating, p.RatingCount)
	}
	p.ApplyRating(5)
	if p.RatingCount != 3 {
		t.Fatalf("count: got %d", p.RatingCount)
	}
	want := (3.0*2 + 5) / 3
	if p.Rating != want {
		t.Fatalf("average: got %v want %v", p.Rating, want)
	}
}
