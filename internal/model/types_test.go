package model

import "testing"

func TestCategoryForExtension(t *testing.T) {
	cases := map[string]Category{
		".pdf":  CategoryDocument,
		"PDF":   CategoryDocument,
		".jpg":  CategoryImage,
		".mkv":  CategoryVideo,
		".flac": CategoryAudio,
		".go":   CategoryCode,
		".zip":  CategoryArchive,
		".xyz":  CategoryOther,
		"":      CategoryOther,
	}
	for ext, want := range cases {
		if got := CategoryForExtension(ext); got != want {
			t.Fatalf("CategoryForExtension(%q)=%s want %s", ext, got, want)
		}
	}
}

func TestCategoryForPath(t *testing.T) {
	if got := CategoryForPath("/home/u/photos/trip.JPG"); got != CategoryImage {
		t.Fatalf("got=%s", got)
	}
	if got := CategoryForPath("/home/u/bin/tool"); got != CategoryOther {
		t.Fatalf("got=%s", got)
	}
}
