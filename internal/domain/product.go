package domain

// Product — проекция товара из каталога, используемая при создании заказа.
// Каталог владеет записью; здесь только читаем цену/имя и состояние стока.
type Product struct {
	ID            string
	Name          string
	PriceMinor    int64
	Sizes         []string
	StockQuantity int32
	InStock       bool
}
