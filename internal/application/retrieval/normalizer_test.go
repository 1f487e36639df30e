package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer(nil)

	cases := map[string]string{
		"  HTN w/ Fx of Lt radius!! ": "hypertension w fracture of left radius",
		"ＨＴＮ":                         "hypertension",
		"S52.5":                       "s52.5",
		"x-ray, knee (2 views)":       "x-ray knee 2 views",
		"T2DM; CKD":                   "type 2 diabetes mellitus chronic kidney disease",
		"fx.":                         "fracture",
		"\t\n":                        "",
		"hypertension":                "hypertension",
	}
	for in, want := range cases {
		assert.Equal(t, want, n.Normalize(in), in)
	}
}

func TestNormalizer_CustomTableAndDeterminism(t *testing.T) {
	n := NewNormalizer(map[string]string{"BKA": "below knee amputation"})

	assert.Equal(t, "below knee amputation lt", n.Normalize("bka LT"), "only the custom table applies")
	assert.Equal(t, n.Normalize("Bka lt"), n.Normalize("bka lt"))
}
