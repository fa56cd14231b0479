package scene

// Equipment is one entry of the palette. Artwork lives with the renderer.
type Equipment struct {
	ID   string
	Name string
}

var Catalog = []Equipment{
	{ID: "becherglas", Name: "Becherglas"},
	{ID: "erlenmeyerkolben", Name: "Erlenmeyerkolben"},
	{ID: "reagenzglas", Name: "Reagenzglas"},
	{ID: "messzylinder", Name: "Messzylinder"},
	{ID: "rundkolben", Name: "Rundkolben"},
	{ID: "stehkolben", Name: "Stehkolben"},
	{ID: "spitzkolben", Name: "Spitzkolben"},
	{ID: "saugflasche", Name: "Saugflasche"},
	{ID: "trichter", Name: "Trichter"},
	{ID: "tropftrichter", Name: "Tropftrichter"},
	{ID: "uhrglas", Name: "Uhrglas"},
	{ID: "wanne", Name: "Pneumatische Wanne"},
	{ID: "spritzflasche", Name: "Spritzflasche"},
	{ID: "liebigkuehler", Name: "Liebigkühler"},
	{ID: "u-rohr", Name: "U-Rohr"},
	{ID: "pipette", Name: "Pipette"},
	{ID: "buerette", Name: "Bürette"},
	{ID: "kolbenprober", Name: "Kolbenprober"},
	{ID: "stativ", Name: "Stativ"},
	{ID: "stativring", Name: "Stativring"},
	{ID: "stativklammer", Name: "Stativklammer"},
	{ID: "muffe", Name: "Muffe"},
	{ID: "reagenzglasgestell", Name: "Reagenzglasgestell"},
	{ID: "reagenzglasklammer", Name: "Reagenzglasklammer"},
	{ID: "gasbrenner", Name: "Gasbrenner"},
	{ID: "dreifuss", Name: "Dreifuß"},
	{ID: "mineralfasernetz", Name: "Mineralfasernetz"},
	{ID: "tondreieck", Name: "Tondreieck"},
	{ID: "abdampfschale", Name: "Abdampfschale"},
	{ID: "moerserschale", Name: "Mörserschale"},
	{ID: "pistill", Name: "Pistill"},
	{ID: "tiegel", Name: "Porzellantiegel"},
	{ID: "tiegelzange", Name: "Tiegelzange"},
	{ID: "spatel", Name: "Spatel"},
	{ID: "loeffel", Name: "Verbrennungslöffel"},
	{ID: "schutzbrille", Name: "Schutzbrille"},
	{ID: "stopfen", Name: "Stopfen"},
	{ID: "wasserstrahlpumpe", Name: "Wasserstrahlpumpe"},
}

// DisplayName returns the palette name for an equipment id, or "item"
// when the id is unknown (items from newer peers, connections).
func DisplayName(id string) string {
	for _, eq := range Catalog {
		if eq.ID == id {
			return eq.Name
		}
	}
	return "item"
}

func Known(id string) bool {
	for _, eq := range Catalog {
		if eq.ID == id {
			return true
		}
	}
	return false
}
