// Package search ranks an in-memory collection against a free-text query.
package search

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	titleWeight   = 3.0
	contentWeight = 1.0
)

// Result is a ranked item.
type Result[T any] struct {
	Item  T
	Score float64
}

// Fields returns the searchable title and content of an item.
type Fields[T any] func(item T) (title, content string)

// Tokenize lowercases s and splits it on whitespace.
func Tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// QueryTokens tokenizes a query and drops single-character tokens.
func QueryTokens(query string) []string {
	var out []string
	for _, t := range Tokenize(query) {
		if utf8.RuneCountInString(t) > 1 {
			out = append(out, t)
		}
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokenize(s) {
		set[t] = struct{}{}
	}
	return set
}

// Score weighs title matches three times content matches, each as the share
// of query tokens found.
func Score(query []string, title, content string) float64 {
	if len(query) == 0 {
		return 0
	}
	titleTokens, contentTokens := tokenSet(title), tokenSet(content)
	var inTitle, inContent int
	for _, q := range query {
		if _, ok := titleTokens[q]; ok {
			inTitle++
		}
		if _, ok := contentTokens[q]; ok {
			inContent++
		}
	}
	if inTitle == 0 && inContent == 0 {
		return 0
	}
	n := float64(len(query))
	return titleWeight*float64(inTitle)/n + contentWeight*float64(inContent)/n
}

// Rank scores every item and returns those with a positive score, best
// first. Ties keep the input order.
func Rank[T any](items []T, query string, fields Fields[T]) []Result[T] {
	q := QueryTokens(query)
	if len(q) == 0 {
		return nil
	}
	var out []Result[T]
	for _, item := range items {
		title, content := fields(item)
		if s := Score(q, title, content); s > 0 {
			out = append(out, Result[T]{Item: item, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
