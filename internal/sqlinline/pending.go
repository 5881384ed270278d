package sqlinline

const QInsertPending = `--sql f101a7d2-6a43-4581-bc42-9d4cfb560a28
insert into pending_entitlements(
  id,
  email,
  customer_id,
  event_id,
  raw_payload,
  grants,
  reason,
  order_id,
  product_id,
  variant_id,
  amount_cents,
  currency,
  subscription_id,
  period_end,
  claimed,
  created_at
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, false, $15);
`

const QListUnclaimedPending = `--sql d1a9426a-dd68-4e60-83fb-d72be9f35744
select
  id,
  email,
  customer_id,
  event_id,
  raw_payload,
  grants,
  reason,
  order_id,
  product_id,
  variant_id,
  amount_cents,
  currency,
  subscription_id,
  period_end,
  created_at
from pending_entitlements
where email = $1
  and claimed = false
order by created_at, id
for update;
`

// QClaimPending only matches unclaimed rows; zero affected rows means another
// transaction claimed it first.
const QClaimPending = `--sql 7ea16a37-a033-470a-b47b-468dbfa2bfe9
update pending_entitlements
set claimed = true,
  claimed_at = $3,
  claimed_by_user_id = $2
where id = $1
  and claimed = false;
`

const QListUnclaimedPendingBySubscription = `--sql e474c8a9-777e-4d20-bf92-bcd95494bd3a
select
  id,
  email,
  customer_id,
  event_id,
  raw_payload,
  grants,
  reason,
  order_id,
  product_id,
  variant_id,
  amount_cents,
  currency,
  subscription_id,
  period_end,
  created_at
from pending_entitlements
where subscription_id = $1
  and claimed = false
order by created_at, id
for update;
`

const QVoidPending = `--sql f4e0857a-9e33-44c0-9e3b-b4cc46e9c5d0
update pending_entitlements
set claimed = true,
  voided_at = $2
where id = $1
  and claimed = false;
`
