package index_test

import (
	"reflect"
	"testing"

	"mediadex/internal/index"
)

func TestExtractTags(t *testing.T) {
	t.Run("extracts meaningful words in order", func(t *testing.T) {
		got := index.ExtractTags("a man riding a red bicycle near the beach")
		want := []string{"man", "riding", "red", "bicycle", "beach"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ExtractTags() = %v, want %v", got, want)
		}
	})

	t.Run("lowercases and strips punctuation", func(t *testing.T) {
		got := index.ExtractTags("Sunset, Beach! Golden-hour.")
		want := []string{"sunset", "beach", "golden", "hour"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ExtractTags() = %v, want %v", got, want)
		}
	})

	t.Run("deduplicates keeping first occurrence", func(t *testing.T) {
		got := index.ExtractTags("dog chasing dog chasing ball")
		want := []string{"dog", "chasing", "ball"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ExtractTags() = %v, want %v", got, want)
		}
	})

	t.Run("drops words of two characters or fewer", func(t *testing.T) {
		got := index.ExtractTags("cat up hi tree")
		want := []string{"cat", "tree"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ExtractTags() = %v, want %v", got, want)
		}
	})

	t.Run("caps the tag count at ten", func(t *testing.T) {
		got := index.ExtractTags("alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima")
		if len(got) != 10 {
			t.Errorf("ExtractTags() returned %d tags, want 10", len(got))
		}
	})

	t.Run("empty caption yields no tags", func(t *testing.T) {
		if got := index.ExtractTags(""); got != nil {
			t.Errorf("ExtractTags(\"\") = %v, want nil", got)
		}
	})
}
