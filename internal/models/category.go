package models

import (
	"fmt"
	"strings"
)

// Category 题目/知识库分类，取值固定
type Category string

const (
	CategoryArraysAndStrings   Category = "ARRAYS_AND_STRINGS"
	CategoryHashmapsAndSets    Category = "HASHMAPS_AND_SETS"
	CategoryStacksAndQueues    Category = "STACKS_AND_QUEUES"
	CategoryLinkedLists        Category = "LINKED_LISTS"
	CategoryBinarySearch       Category = "BINARY_SEARCH"
	CategorySlidingWindow      Category = "SLIDING_WINDOW"
	CategoryTrees              Category = "TREES"
	CategoryHeaps              Category = "HEAPS"
	CategoryBacktracking       Category = "BACKTRACKING"
	CategoryGraphs             Category = "GRAPHS"
	CategoryDynamicProgramming Category = "DYNAMIC_PROGRAMMING"
)

var allCategories = []Category{
	CategoryArraysAndStrings,
	CategoryHashmapsAndSets,
	CategoryStacksAndQueues,
	CategoryLinkedLists,
	CategoryBinarySearch,
	CategorySlidingWindow,
	CategoryTrees,
	CategoryHeaps,
	CategoryBacktracking,
	CategoryGraphs,
	CategoryDynamicProgramming,
}

// AllCategories 返回全部分类（按固定顺序）
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// Valid 判断分类是否属于分类表
func (c Category) Valid() bool {
	for _, v := range allCategories {
		if v == c {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// DisplayName 人类可读名称，如 BINARY_SEARCH -> Binary Search
func (c Category) DisplayName() string {
	parts := strings.Split(strings.ToLower(string(c)), "_")
	for i, p := range parts {
		if p == "and" {
			continue
		}
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// ParseCategory 解析分类字符串，大小写不敏感，允许用空格或连字符代替下划线
// 空字符串返回空分类和nil，表示"不过滤"
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	normalized := strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(s))
	c := Category(normalized)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}
