package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Category
		wantErr bool
	}{
		{"exact", "BINARY_SEARCH", CategoryBinarySearch, false},
		{"lower case", "binary_search", CategoryBinarySearch, false},
		{"spaces", "dynamic programming", CategoryDynamicProgramming, false},
		{"hyphen", "sliding-window", CategorySlidingWindow, false},
		{"empty means no filter", "  ", "", false},
		{"unknown", "QUANTUM", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCategory(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidCategory))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllCategories(t *testing.T) {
	cats := AllCategories()
	assert.Len(t, cats, 11)
	for _, c := range cats {
		assert.True(t, c.Valid(), c)
	}

	// 返回副本，修改不影响内部表
	cats[0] = "BROKEN"
	assert.Equal(t, CategoryArraysAndStrings, AllCategories()[0])
}

func TestCategoryDisplayName(t *testing.T) {
	assert.Equal(t, "Binary Search", CategoryBinarySearch.DisplayName())
	assert.Equal(t, "Hashmaps and Sets", CategoryHashmapsAndSets.DisplayName())
}
