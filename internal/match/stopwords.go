package match

// stopWordList covers the function words of the six marketplace languages.
// Callers filter tokens shorter than 2 runes before consulting the list, so
// single-letter words are omitted.
var stopWordList = []string{
	// English
	"the", "and", "for", "with", "from", "this", "that", "your", "our",
	"are", "was", "were", "has", "have", "had", "not", "but", "you", "all",
	"can", "will", "its", "of", "to", "in", "on", "at", "by", "is", "it",
	"an", "or", "as", "be", "we", "us", "if", "so", "no", "do", "any",
	// German
	"der", "die", "das", "und", "oder", "für", "mit", "von", "zu", "im",
	"am", "ein", "eine", "einen", "einem", "einer", "ist", "sind", "sie",
	"es", "auf", "aus", "bei", "nach", "über", "unter", "durch", "gegen",
	"ohne", "um", "auch", "nicht", "mehr", "sehr", "wie", "als", "dem",
	"den", "des", "zur", "zum",
	// Polish
	"na", "od", "po", "za", "ze", "przy", "dla", "jest", "są", "nie",
	"się", "lub", "oraz", "aby", "jak", "która", "który", "które", "też",
	"tak", "ten", "ta", "co", "czy", "bez", "pod", "nad", "przez",
	// French
	"le", "la", "les", "un", "une", "et", "ou", "pour", "avec", "de",
	"du", "au", "aux", "en", "sur", "dans", "est", "sont", "pas", "par",
	"ce", "ces", "cette", "qui", "que", "vous", "nous", "votre", "notre",
	"se", "sa", "son", "ses",
	// Italian
	"il", "lo", "gli", "uno", "una", "per", "con", "di", "da", "su",
	"che", "sono", "non", "più", "del", "della", "dei", "delle", "nel",
	"alla", "come", "anche",
	// Spanish
	"el", "los", "las", "unos", "unas", "para", "sobre", "son", "por",
	"sus", "al", "más", "este", "esta", "estos", "estas",
}

var stopWords = func() map[string]struct{} {
	set := make(map[string]struct{}, len(stopWordList))
	for _, word := range stopWordList {
		set[word] = struct{}{}
	}
	return set
}()

// IsStopWord reports whether the lowercased token is a function word in one of
// the supported marketplace languages.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}
