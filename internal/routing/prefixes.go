package routing

// prefixEntry is one row of the dialing-prefix table.
type prefixEntry struct {
	prefix    string
	continent Continent
	country   string
}

// prefixes is the ordered dialing-prefix table. Kept as one flat list and
// sorted longest-first at init; resolution is a single longest-prefix scan.
var prefixes = []prefixEntry{
	// Africa
	{"20", Africa, "Egypt"},
	{"211", Africa, "South Sudan"},
	{"212", Africa, "Morocco"},
	{"213", Africa, "Algeria"},
	{"216", Africa, "Tunisia"},
	{"218", Africa, "Libya"},
	{"220", Africa, "Gambia"},
	{"221", Africa, "Senegal"},
	{"223", Africa, "Mali"},
	{"224", Africa, "Guinea"},
	{"225", Africa, "Cote d'Ivoire"},
	{"226", Africa, "Burkina Faso"},
	{"227", Africa, "Niger"},
	{"228", Africa, "Togo"},
	{"229", Africa, "Benin"},
	{"230", Africa, "Mauritius"},
	{"231", Africa, "Liberia"},
	{"232", Africa, "Sierra Leone"},
	{"233", Africa, "Ghana"},
	{"234", Africa, "Nigeria"},
	{"235", Africa, "Chad"},
	{"236", Africa, "Central African Republic"},
	{"237", Africa, "Cameroon"},
	{"241", Africa, "Gabon"},
	{"242", Africa, "Republic of the Congo"},
	{"243", Africa, "DR Congo"},
	{"244", Africa, "Angola"},
	{"248", Africa, "Seychelles"},
	{"249", Africa, "Sudan"},
	{"250", Africa, "Rwanda"},
	{"251", Africa, "Ethiopia"},
	{"252", Africa, "Somalia"},
	{"253", Africa, "Djibouti"},
	{"254", Africa, "Kenya"},
	{"255", Africa, "Tanzania"},
	{"256", Africa, "Uganda"},
	{"257", Africa, "Burundi"},
	{"258", Africa, "Mozambique"},
	{"260", Africa, "Zambia"},
	{"261", Africa, "Madagascar"},
	{"263", Africa, "Zimbabwe"},
	{"264", Africa, "Namibia"},
	{"265", Africa, "Malawi"},
	{"266", Africa, "Lesotho"},
	{"267", Africa, "Botswana"},
	{"268", Africa, "Eswatini"},
	{"27", Africa, "South Africa"},

	// Europe
	{"30", Europe, "Greece"},
	{"31", Europe, "Netherlands"},
	{"32", Europe, "Belgium"},
	{"33", Europe, "France"},
	{"34", Europe, "Spain"},
	{"351", Europe, "Portugal"},
	{"353", Europe, "Ireland"},
	{"354", Europe, "Iceland"},
	{"358", Europe, "Finland"},
	{"359", Europe, "Bulgaria"},
	{"36", Europe, "Hungary"},
	{"380", Europe, "Ukraine"},
	{"39", Europe, "Italy"},
	{"40", Europe, "Romania"},
	{"41", Europe, "Switzerland"},
	{"420", Europe, "Czechia"},
	{"421", Europe, "Slovakia"},
	{"43", Europe, "Austria"},
	{"44", Europe, "United Kingdom"},
	{"45", Europe, "Denmark"},
	{"46", Europe, "Sweden"},
	{"47", Europe, "Norway"},
	{"48", Europe, "Poland"},
	{"49", Europe, "Germany"},
	{"7", Europe, "Russia"},

	// North America (NANP shares "1")
	{"1", NorthAmerica, "United States/Canada"},
	{"52", NorthAmerica, "Mexico"},
	{"502", NorthAmerica, "Guatemala"},
	{"503", NorthAmerica, "El Salvador"},
	{"504", NorthAmerica, "Honduras"},
	{"505", NorthAmerica, "Nicaragua"},
	{"506", NorthAmerica, "Costa Rica"},
	{"507", NorthAmerica, "Panama"},
	{"509", NorthAmerica, "Haiti"},
	{"53", NorthAmerica, "Cuba"},

	// South America
	{"51", SouthAmerica, "Peru"},
	{"54", SouthAmerica, "Argentina"},
	{"55", SouthAmerica, "Brazil"},
	{"56", SouthAmerica, "Chile"},
	{"57", SouthAmerica, "Colombia"},
	{"58", SouthAmerica, "Venezuela"},
	{"591", SouthAmerica, "Bolivia"},
	{"593", SouthAmerica, "Ecuador"},
	{"595", SouthAmerica, "Paraguay"},
	{"598", SouthAmerica, "Uruguay"},

	// Asia & Middle East
	{"60", Asia, "Malaysia"},
	{"62", Asia, "Indonesia"},
	{"63", Asia, "Philippines"},
	{"65", Asia, "Singapore"},
	{"66", Asia, "Thailand"},
	{"81", Asia, "Japan"},
	{"82", Asia, "South Korea"},
	{"84", Asia, "Vietnam"},
	{"86", Asia, "China"},
	{"880", Asia, "Bangladesh"},
	{"90", Asia, "Turkey"},
	{"91", Asia, "India"},
	{"92", Asia, "Pakistan"},
	{"94", Asia, "Sri Lanka"},
	{"95", Asia, "Myanmar"},
	{"960", Asia, "Maldives"},
	{"962", Asia, "Jordan"},
	{"965", Asia, "Kuwait"},
	{"966", Asia, "Saudi Arabia"},
	{"968", Asia, "Oman"},
	{"971", Asia, "United Arab Emirates"},
	{"972", Asia, "Israel"},
	{"973", Asia, "Bahrain"},
	{"974", Asia, "Qatar"},
	{"977", Asia, "Nepal"},
	{"98", Asia, "Iran"},

	// Oceania
	{"61", Oceania, "Australia"},
	{"64", Oceania, "New Zealand"},
	{"675", Oceania, "Papua New Guinea"},
	{"679", Oceania, "Fiji"},
	{"685", Oceania, "Samoa"},
}
