package content

var vorlageExtractor = extractor{
	sections: []section{
		newSection("beschlusstext",
			[]string{"Beschlussvorschlag", "Beschluss", "Empfehlung", "Antrag"},
			[]string{"Begruendung", "Begründung", "Sachverhalt", "Finanzielle Auswirkungen", "Zustaendigkeit", "Zuständigkeit", "Federfuehrung", "Federführung", "Anlagen"}),
		newSection("begruendung",
			[]string{"Begruendung", "Begründung", "Sachverhalt", "Erläuterung", "Erlaeuterung"},
			[]string{"Finanzielle Auswirkungen", "Zustaendigkeit", "Zuständigkeit", "Federfuehrung", "Federführung", "Beschlussvorschlag", "Beschluss", "Anlagen"}),
		newSection("finanzbezug",
			[]string{"Finanzielle Auswirkungen", "Finanzierung", "Haushaltsmittel", "Kosten"},
			[]string{"Zustaendigkeit", "Zuständigkeit", "Federfuehrung", "Federführung", "Anlagen", "Beschluss", "Begruendung", "Begründung"}),
		newSection("zustaendigkeit",
			[]string{"Zustaendigkeit", "Zuständigkeit", "Federfuehrung", "Federführung", "Beratungsfolge", "Zustaendige Stelle", "Zuständige Stelle"},
			[]string{"Anlagen", "Finanzielle Auswirkungen", "Begruendung", "Begründung", "Beschluss"}),
	},
	strong: []string{"beschlusstext", "begruendung", "finanzbezug", "zustaendigkeit"},
}

var protokollExtractor = extractor{
	sections: []section{
		newSection("entscheidung",
			[]string{"Beschluss", "Abstimmung", "Entscheidung", "Ergebnis"},
			[]string{"Begruendung", "Begründung", "Sachverhalt", "Notiz", "Hinweis", "Anlagen"}),
		newSection("beschlusstext",
			[]string{"Beschlusstext", "Beschluss", "Beschlussvorschlag"},
			[]string{"Abstimmung", "Ergebnis", "Notiz", "Hinweis", "Anlagen"}),
		newSection("begruendung",
			[]string{"Begruendung", "Begründung", "Sachverhalt", "Diskussion", "Beratung"},
			[]string{"Beschluss", "Abstimmung", "Ergebnis", "Anlagen"}),
	},
	strong: []string{"beschlusstext", "entscheidung", "begruendung"},
}

var extractors = map[string]extractor{
	"vorlage":          vorlageExtractor,
	"beschlussvorlage": vorlageExtractor,
	"protokoll":        protokollExtractor,
}
