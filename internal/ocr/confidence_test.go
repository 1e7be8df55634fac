package ocr

import "testing"

func TestHeuristicConfidence(t *testing.T) {
	receipt := "CARREFOUR MARKET\n12/03/2024\nTOTAL HT: 45,45 €\nTVA 10%: 4,55 €\nTOTAL TTC: 50,00 €\nMERCI DE VOTRE VISITE ET A BIENTOT DANS VOTRE MAGASIN"
	junk := "xxxx"

	rc := heuristicConfidence(receipt)
	jc := heuristicConfidence(junk)
	if rc <= jc {
		t.Errorf("receipt confidence %v not above junk %v", rc, jc)
	}
	if rc < 0.8 {
		t.Errorf("full receipt confidence = %v, want all artifact bonuses", rc)
	}
	if jc != 0.2 {
		t.Errorf("junk confidence = %v, want the bare base", jc)
	}
}

func TestHeuristicConfidenceCapped(t *testing.T) {
	long := ""
	for i := 0; i < 10; i++ {
		long += "12/03/2024 TOTAL TTC 50,00 € TVA HT "
	}
	if c := heuristicConfidence(long); c > 1.0 {
		t.Errorf("confidence %v above 1.0", c)
	}
}
