package amounts

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Extract", func() {
	var (
		text   string
		tokens []RawToken
	)

	JustBeforeEach(func() {
		tokens = Extract(text)
	})

	When("the text uses Label: value constructs", func() {
		BeforeEach(func() {
			text = "Total: INR 1200 | Paid: 1000 | Due: 200 | Discount: 10%"
		})

		It("should find every token in source order", func() {
			Expect(rawsOf(tokens)).To(Equal([]string{"1200", "1000", "200", "10%"}))
		})

		It("should attach the lower-cased labels", func() {
			labels := make([]string, 0, len(tokens))
			for _, t := range tokens {
				labels = append(labels, t.Label)
			}
			Expect(labels).To(Equal([]string{"total", "paid", "due", "discount"}))
		})

		It("should replace the context with the label", func() {
			Expect(tokens[1].Left).To(Equal("paid: "))
			Expect(tokens[1].Right).To(BeEmpty())
		})
	})

	When("the label spans several words", func() {
		BeforeEach(func() {
			text = "Grand   Total: ₹ 1,500"
		})

		It("should collapse the label whitespace", func() {
			Expect(tokens).To(HaveLen(1))
			Expect(tokens[0].Label).To(Equal("grand total"))
			Expect(tokens[0].Raw).To(Equal("1,500"))
		})
	})

	When("the text has no label construct", func() {
		BeforeEach(func() {
			text = "Consultation fee 500 only"
		})

		It("should capture up to 15 characters on each side", func() {
			Expect(tokens).To(HaveLen(1))
			Expect(tokens[0].Left).To(Equal("nsultation fee "))
			Expect(tokens[0].Right).To(Equal(" only"))
		})

		It("should not set a label", func() {
			Expect(tokens[0].Label).To(BeEmpty())
		})

		It("should leave the monetary context hook unset", func() {
			Expect(tokens[0].MonetaryContext).To(BeFalse())
		})
	})

	When("a label sits on a previous line", func() {
		BeforeEach(func() {
			text = "Total\n:\n700"
		})

		It("should fall back to the surrounding text", func() {
			Expect(tokens).To(HaveLen(1))
			Expect(tokens[0].Label).To(BeEmpty())
			Expect(tokens[0].Left).To(Equal("Total\n:\n"))
		})
	})

	When("digits were misread as letters", func() {
		BeforeEach(func() {
			text = "Total l2OO"
		})

		It("should keep the confused characters in the token", func() {
			Expect(rawsOf(tokens)).To(Equal([]string{"l2OO"}))
		})
	})

	When("a confusable letter belongs to a neighbouring word", func() {
		BeforeEach(func() {
			text = "Rs1200 within 10Days"
		})

		It("should trim the letters off the token", func() {
			Expect(rawsOf(tokens)).To(Equal([]string{"1200", "10"}))
		})
	})

	When("confused zeros run straight into a unit", func() {
		BeforeEach(func() {
			text = "Paracetamol 5OOmg"
		})

		It("should treat the trailing letters as part of the unit", func() {
			Expect(rawsOf(tokens)).To(Equal([]string{"5"}))
		})
	})

	When("confused zeros stand alone", func() {
		BeforeEach(func() {
			text = "Paracetamol 5OO mg"
		})

		It("should keep them in the token", func() {
			Expect(rawsOf(tokens)).To(Equal([]string{"5OO"}))
		})
	})

	When("the text carries decimals and thousands separators", func() {
		BeforeEach(func() {
			text = "Room charges 1,200.50"
		})

		It("should keep the numeral whole", func() {
			Expect(rawsOf(tokens)).To(Equal([]string{"1,200.50"}))
		})
	})

	When("the context contains multi-byte characters", func() {
		BeforeEach(func() {
			text = "₹500 paid"
		})

		It("should not split characters", func() {
			Expect(tokens[0].Left).To(Equal("₹"))
			Expect(tokens[0].Right).To(Equal(" paid"))
		})
	})

	When("the text contains no digits", func() {
		BeforeEach(func() {
			text = "asdf qwer"
		})

		It("should return no tokens", func() {
			Expect(tokens).To(BeEmpty())
		})
	})
})

var _ = Describe("DetectCurrency", func() {
	DescribeTable("currency markers",
		func(text, expected string) {
			Expect(DetectCurrency(text)).To(Equal(expected))
		},
		Entry("INR code", "Total: INR 1200", "INR"),
		Entry("rupee abbreviation", "Paid Rs. 500", "INR"),
		Entry("rupee sign", "₹ 250", "INR"),
		Entry("dollar sign", "Amount $40", "USD"),
		Entry("euro code in lower case", "eur 12", "EUR"),
		Entry("euro sign", "€12", "EUR"),
		Entry("pound sign", "£9", "GBP"),
		Entry("first marker wins", "USD 10 or £8", "USD"),
		Entry("marker inside a word is ignored", "Hours 3 at $20", "USD"),
		Entry("no marker", "Total 1200", "INR"),
	)
})
