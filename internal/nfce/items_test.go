package nfce

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("TokenizeItems", func() {
	var (
		body  string
		items []LineItem
	)

	JustBeforeEach(func() {
		items = TokenizeItems(body)
	})

	When("scanning a flattened receipt", func() {
		BeforeEach(func() {
			body = NormalizeBody(receiptText)
		})

		It("should number items densely in order", func() {
			Expect(items).To(HaveLen(4))
			for i, item := range items {
				Expect(item.Seq).To(Equal(i + 1))
			}
		})

		It("should capture the fields of a weighed item", func() {
			banana := items[1]
			Expect(banana.Description).To(Equal("BANANA PRATA KG"))
			Expect(banana.ProductCode).To(Equal("1313"))
			Expect(banana.Quantity).To(Equal(Number{Value: dec("0.83"), Confidence: High}))
			Expect(banana.Unit).To(Equal("KG"))
			Expect(banana.UnitPrice.Value.Equal(dec("6.52"))).To(BeTrue())
			Expect(banana.TotalPrice.Value.Equal(dec("5.41"))).To(BeTrue())
			Expect(banana.LowConfidence()).To(BeFalse())
		})

		It("should keep slashes and digits in descriptions", func() {
			Expect(items[2].Description).To(Equal("DANTEX PANO MULTIUSO C/5"))
			Expect(items[3].Description).To(Equal("NISSIN CUP NOODLES GALINHA 69G"))
		})
	})

	When("a description contains a decimal size", func() {
		BeforeEach(func() {
			body = "AGUA MINERAL BELAGUA 1,5L (Código: 23001 ) Qtde.:4UN: UNVl. Unit.: 3,45 Vl. Total 13,80"
		})

		It("should keep the size in the description", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].Description).To(Equal("AGUA MINERAL BELAGUA 1,5L"))
			Expect(items[0].Quantity.Value.Equal(dec("4"))).To(BeTrue())
		})
	})

	When("labels vary in case and accents", func() {
		BeforeEach(func() {
			body = "LEITE UHT (codigo: A12) QTDE: 2 un: lt vl unit: 4,99 VL TOTAL: 9,98"
		})

		It("should still match", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].ProductCode).To(Equal("A12"))
			Expect(items[0].Unit).To(Equal("LT"))
			Expect(items[0].TotalPrice.Value.Equal(dec("9.98"))).To(BeTrue())
		})
	})

	When("the unit is missing", func() {
		BeforeEach(func() {
			body = "PAO (Código: 1) Qtde.:1UN: Vl. Unit.: 0,50 Vl. Total 0,50"
		})

		It("should default the unit", func() {
			Expect(items[0].Unit).To(Equal("UN"))
		})
	})

	When("the total section is cut off", func() {
		BeforeEach(func() {
			body = "CAFE TORRADO 500G (Código: 88 ) Qtde.:1UN: UNVl. Unit.: 17,90"
		})

		It("should emit the item with a low confidence total", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].TotalPrice).To(Equal(Number{Value: priceFallback, Confidence: Low}))
			Expect(items[0].UnitPrice.Confidence).To(Equal(High))
		})
	})

	When("the quantity is garbled", func() {
		BeforeEach(func() {
			body = NormalizeBody("PAO DA HORA KG (Código: 1001 ) Qtde.:l UN: KG Vl. Unit.: 13,49 Vl. Total 13,49")
		})

		It("should keep the item with a low confidence quantity", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].Quantity).To(Equal(Number{Value: quantityFallback, Confidence: Low}))
			Expect(items[0].UnitPrice).To(Equal(Number{Value: dec("13.49"), Confidence: High}))
			Expect(items[0].TotalPrice).To(Equal(Number{Value: dec("13.49"), Confidence: High}))
			Expect(items[0].LowConfidence()).To(BeTrue())
		})
	})

	When("the quantity and the unit price are garbled", func() {
		BeforeEach(func() {
			body = "PAO DA HORA KG (Código: 1001 ) Qtde.: abc UN: KG Vl. Unit.: l3,49 Vl. Total 13,49"
		})

		It("should fall back on both and keep the total", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].Quantity).To(Equal(Number{Value: quantityFallback, Confidence: Low}))
			Expect(items[0].UnitPrice).To(Equal(Number{Value: priceFallback, Confidence: Low}))
			Expect(items[0].TotalPrice).To(Equal(Number{Value: dec("13.49"), Confidence: High}))
		})
	})

	When("a price ends in an OCR letter", func() {
		BeforeEach(func() {
			body = "PAO DA HORA KG (Código: 1001 ) Qtde.:1UN: KG Vl. Unit.: 13,4O Vl. Total 13,4O"
		})

		It("should not report a truncated value as genuine", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].UnitPrice).To(Equal(Number{Value: priceFallback, Confidence: Low}))
			Expect(items[0].TotalPrice).To(Equal(Number{Value: priceFallback, Confidence: Low}))
		})
	})

	When("the unit is garbled", func() {
		BeforeEach(func() {
			body = "ARROZ (Código: 2 ) Qtde.:1UN: K6Vl. Unit.: 2,00 Vl. Total 2,00"
		})

		It("should default the unit", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].Unit).To(Equal("UN"))
			Expect(items[0].UnitPrice.Value.Equal(dec("2"))).To(BeTrue())
		})
	})

	When("the merchant header is all upper case", func() {
		BeforeEach(func() {
			body = NormalizeBody("MERCADO X LTDA\nCNPJ 09 634 089 0002 01\nDOCUMENTO AUXILIAR DA NFC-E\n" +
				"ARROZ 5KG (Código: 7 ) Qtde.:1UN: UNVl. Unit.: 5,00 Vl. Total 5,00")
		})

		It("should start the first description after the header", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].Description).To(Equal("ARROZ 5KG"))
			Expect(items[0].NormalizedDescription).To(Equal("ARROZ 5KG"))
		})
	})

	When("a CNPJ only appears after the items", func() {
		BeforeEach(func() {
			body = "ARROZ 5KG (Código: 7 ) Qtde.:1UN: UNVl. Unit.: 5,00 Vl. Total 5,00 CONSUMIDOR CNPJ 09.634.089/0002-01"
		})

		It("should still read the items", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].Description).To(Equal("ARROZ 5KG"))
		})
	})

	When("there are no item records", func() {
		BeforeEach(func() {
			body = "Qtd. total de itens:0 Valor a pagar R$:0,00"
		})

		It("should return an empty list", func() {
			Expect(items).NotTo(BeNil())
			Expect(items).To(BeEmpty())
		})
	})
})

var _ = Describe("ItemScanner", func() {
	It("should keep its own cursor", func() {
		body := NormalizeBody(receiptText)
		first := NewItemScanner(body)
		second := NewItemScanner(body)

		a, ok := first.Next()
		Expect(ok).To(BeTrue())
		b, ok := first.Next()
		Expect(ok).To(BeTrue())
		c, ok := second.Next()
		Expect(ok).To(BeTrue())

		Expect(a.Seq).To(Equal(1))
		Expect(b.Seq).To(Equal(2))
		Expect(c).To(Equal(a))
	})

	It("should stay exhausted", func() {
		s := NewItemScanner("nada")
		_, ok := s.Next()
		Expect(ok).To(BeFalse())
		_, ok = s.Next()
		Expect(ok).To(BeFalse())
	})
})
