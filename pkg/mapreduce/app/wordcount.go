package app

import (
	"regexp"
	"strings"
)

var word = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// WordCount counts lowercased words.
var WordCount = Funcs{
	MapFunc: func(line string) []KeyValue {
		words := word.FindAllString(strings.ToLower(line), -1)
		kva := make([]KeyValue, 0, len(words))
		for _, w := range words {
			kva = append(kva, KeyValue{Key: w, Value: 1})
		}
		return kva
	},
	ReduceFunc: func(key string, values []int64) int64 {
		var sum int64
		for _, v := range values {
			sum += v
		}
		return sum
	},
}

func init() {
	Register("wordcount", WordCount)
}
