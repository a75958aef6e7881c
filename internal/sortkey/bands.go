package sortkey

import "strings"

var bandAdjectives = setOf(
	"big", "small", "little",
	"bad", "good", "great",
	"new", "old", "young",
	"black", "white", "blue", "red", "green",
	"wild", "sweet",
)

var bandTerms = setOf(
	"band", "trio", "quartet", "quintet", "sextet", "septet", "octet", "nonet",
	"orchestra", "ensemble", "choir", "chorale", "collective", "project", "group",
	"crew", "players", "brothers", "sisters", "family", "experience",
)

var commonFirstNames = setOf(
	"john", "james", "michael", "robert", "david", "william", "richard", "thomas", "charles", "joseph",
	"christopher", "daniel", "paul", "mark", "donald", "george", "kenneth", "steven", "edward", "brian",
	"ronald", "anthony", "kevin", "jason", "matthew", "gary", "timothy", "jose", "larry", "jeffrey",
	"frank", "scott", "eric", "stephen", "andrew", "raymond", "gregory", "joshua", "jerry", "dennis",
	"walter", "patrick", "peter", "harold", "douglas", "henry", "carl", "arthur", "ryan", "roger",
	"joe", "juan", "jack", "albert", "jonathan", "justin", "terry", "gerald", "keith", "samuel", "willie",
	"ralph", "lawrence", "nicholas", "roy", "benjamin", "bruce", "brandon", "adam", "harry", "fred", "wayne",
	"billy", "steve", "louis", "jeremy", "aaron", "randy", "howard", "eugene", "carlos", "russell", "bobby",
	"victor", "martin", "ernest", "phillip", "todd", "jesse", "craig", "alan", "shawn", "clarence", "sean",
	"philip", "chris", "johnny", "earl", "jimmy", "antonio", "danny", "bryan", "tony", "luis", "miles",
	"neil", "nick", "lou", "chuck", "ian", "alex", "noel",
)

func setOf(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func in(set map[string]struct{}, word string) bool {
	_, ok := set[word]
	return ok
}

// IsBandLike guesses whether a two-word name belongs to a group rather than a person
func IsBandLike(first, last string) bool {
	first, last = strings.ToLower(first), strings.ToLower(last)
	switch {
	case in(bandTerms, last):
		return true
	case strings.HasSuffix(last, "s") && !in(commonFirstNames, first):
		return true
	case in(bandAdjectives, first) && !in(commonFirstNames, last):
		return true
	}
	return false
}
