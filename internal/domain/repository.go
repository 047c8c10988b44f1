package domain

import "time"

// ProductRepository описывает требования к хранилищу каталога.
//
// ApplyStockChange — тот самый условный write-примитив, на котором построен
// Stock Ledger: обновление проходит только если версия строки совпала с
// ожидаемой, иначе возвращается ErrVersionConflict.
type ProductRepository interface {
	// Create сохраняет новый товар. Возвращает ошибку, если ID уже занят.
	Create(product Product) error
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(id string) (Product, error)
	// ApplyStockChange выполняет условную запись нового количества:
	// сравнение версии и запись — одна атомарная операция хранилища.
	// Возвращает новую версию строки.
	ApplyStockChange(id string, newOnHand int32, expectedVersion int64) (int64, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(customerID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking:
	// при несовпадении версии возвращается ErrVersionConflict, и перехода
	// статуса не происходит. Это условный update из требований к FSM.
	Save(order Order) error
}

// CartRepository описывает требования к хранилищу сессионных корзин.
type CartRepository interface {
	// Get возвращает корзину по идентификатору сессии или ErrCartNotFound.
	Get(id string) (Cart, error)
	// Save перезаписывает корзину целиком, обновляя UpdatedAt.
	Save(cart Cart) error
	// Delete удаляет корзину; отсутствие корзины не считается ошибкой.
	Delete(id string) error
	// DeleteStale удаляет корзины, не менявшиеся с указанного момента,
	// не более limit за вызов. Возвращает число удалённых.
	DeleteStale(before time.Time, limit int) (int, error)
}

// ReservationRepository хранит складские резервы.
type ReservationRepository interface {
	Create(reservation StockReservation) error
	Get(id string) (StockReservation, error)
	ListByOrder(orderID string) ([]StockReservation, error)
	// UpdateStatus переводит резерв из статуса from в статус to одной
	// условной записью, как ApplyStockChange для строки товара: из двух
	// конкурентных переводов проходит ровно один. Если резерва нет или его
	// текущий статус не совпадает с from, возвращается ErrReservationNotFound.
	UpdateStatus(id string, from, to ReservationStatus) error
}
